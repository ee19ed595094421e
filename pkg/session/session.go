// Package session owns all mutable per-connection game state: party
// HP, conversation history, combat status, and the scene mirror that
// tracks what the client is rendering. Sessions are mutex-guarded;
// the parser and post-processor only read snapshots and return deltas.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/shadowmere/dungeon-gm/pkg/chat"
	"github.com/shadowmere/dungeon-gm/pkg/protocol"
	"github.com/shadowmere/dungeon-gm/pkg/scene"
)

const (
	// MaxHistory caps conversation history; oldest entries drop first.
	MaxHistory = 50

	// StaleAfter is how long a session may idle before the sweep
	// closes its connection.
	StaleAfter = 30 * time.Minute

	DefaultMap = "chamber"
)

// DefaultPartyPos is where the party stands after a room change.
var DefaultPartyPos = [2]int{9, 8}

var supportedLocales = language.NewMatcher([]language.Tag{
	language.English, // en: default
	language.Chinese, // zh and variants
})

// NormalizeLocale maps a client locale tag ("zh-TW", "en-US", garbage)
// onto one of the prompt languages, defaulting to English.
func NormalizeLocale(locale string) string {
	if locale == "" {
		return "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	_, idx, _ := supportedLocales.Match(tag)
	if idx == 1 {
		return "zh"
	}
	return "en"
}

type hitPoints struct {
	hp    int
	maxHP int
}

// XPGrant is one pending external reward, drained by FlushPendingXP.
type XPGrant struct {
	TokenID int64
	Amount  int
}

// AdventureData is the per-floor summary reported to the reward
// collaborator when a floor resolves or the client disconnects.
type AdventureData struct {
	TokenIDs  []int64
	Floor     int
	Result    int
	XPEarned  int
	KillCount int
}

// Session is the authoritative state for one live connection.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	party     []protocol.PartyMemberInit
	partyHP   map[string]*hitPoints
	history   []chat.Message
	floor     int
	inCombat  bool
	locale    string
	stageName string

	sceneMap      string
	sceneEntities []string
	entitySeq     map[string]int // per-type spawn counters, reset on map change
	partyPos      [2]int

	providerSessionID string

	tokenIDs  []int64
	pendingXP map[int64]int
	killCount int
	floorXP   int

	lastActivity time.Time
	turnActive   bool

	now func() time.Time
}

// New creates a session from an init payload.
func New(party []protocol.PartyMemberInit, locale string, floor int, stageName string) *Session {
	if floor <= 0 {
		floor = 1
	}
	s := &Session{
		id:        uuid.New(),
		party:     party,
		partyHP:   make(map[string]*hitPoints, len(party)),
		floor:     floor,
		locale:    NormalizeLocale(locale),
		stageName: stageName,
		sceneMap:  DefaultMap,
		entitySeq: make(map[string]int),
		partyPos:  DefaultPartyPos,
		pendingXP: make(map[int64]int),
		now:       time.Now,
	}
	for _, m := range party {
		s.partyHP[m.Name] = &hitPoints{hp: m.HP, maxHP: m.MaxHP}
		if m.TokenID > 0 {
			s.tokenIDs = append(s.tokenIDs, m.TokenID)
		}
	}
	s.lastActivity = s.now()
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Party() []protocol.PartyMemberInit { return s.party }

func (s *Session) Locale() string { return s.locale }

func (s *Session) StageName() string { return s.stageName }

func (s *Session) Floor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floor
}

func (s *Session) SetFloor(floor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if floor > 0 {
		s.floor = floor
	}
}

func (s *Session) InCombat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inCombat
}

func (s *Session) SetInCombat(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inCombat = v
}

func (s *Session) ProviderSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerSessionID
}

func (s *Session) SetProviderSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.providerSessionID = id
	}
}

// ApplyHP resolves name against the party and applies a clamped delta.
// Resolution tolerates the model's name drift: exact key first, then a
// generic "player" alias to the designated player character, then a
// case-sensitive substring containment match in either direction.
// Returns nil when nothing resolves; an unknown target is expected
// noise, never an error and never a new party member.
func (s *Session) ApplyHP(name string, delta int) *protocol.HPUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.partyHP[name]
	if !ok {
		entry = s.resolveLocked(name)
	}
	if entry == nil {
		return nil
	}

	entry.hp = clamp(entry.hp+delta, 0, entry.maxHP)
	for n, e := range s.partyHP {
		if e == entry {
			return &protocol.HPUpdate{Name: n, HP: entry.hp, MaxHP: entry.maxHP}
		}
	}
	return nil
}

func (s *Session) resolveLocked(name string) *hitPoints {
	if strings.EqualFold(name, "player") {
		for _, m := range s.party {
			if m.IsCharacter {
				return s.partyHP[m.Name]
			}
		}
	}
	for n, e := range s.partyHP {
		if strings.Contains(n, name) || strings.Contains(name, n) {
			return e
		}
	}
	return nil
}

// HPSnapshot returns current HP for every party member, in party order.
func (s *Session) HPSnapshot() []protocol.HPUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.HPUpdate, 0, len(s.party))
	for _, m := range s.party {
		if e, ok := s.partyHP[m.Name]; ok {
			out = append(out, protocol.HPUpdate{Name: m.Name, HP: e.hp, MaxHP: e.maxHP})
		}
	}
	return out
}

// UpdateScene mutates the scene mirror for one scene command. Unknown
// commands are ignored; the client may render effects the server does
// not track.
func (s *Session) UpdateScene(command string, args []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch command {
	case "set_map":
		name := DefaultMap
		if len(args) > 0 && args[0] != "" {
			name = args[0]
		}
		s.sceneMap = name
		s.sceneEntities = nil
		s.entitySeq = make(map[string]int)
	case "spawn":
		typ := "entity"
		if len(args) > 0 && args[0] != "" {
			typ = args[0]
		}
		s.entitySeq[typ]++
		s.sceneEntities = append(s.sceneEntities, fmt.Sprintf("%s_%d", typ, s.entitySeq[typ]))
	case "remove":
		if len(args) == 0 {
			return
		}
		id := args[0]
		for i, e := range s.sceneEntities {
			if e == id {
				s.sceneEntities = append(s.sceneEntities[:i], s.sceneEntities[i+1:]...)
				if scene.IsEnemyType(scene.EntityType(id)) {
					s.killCount++
				}
				return
			}
		}
	case "move_party":
		x, y := DefaultPartyPos[0], DefaultPartyPos[1]
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil {
				x = v
			}
		}
		if len(args) > 1 {
			if v, err := strconv.Atoi(args[1]); err == nil {
				y = v
			}
		}
		s.partyPos = [2]int{x, y}
	}
}

func (s *Session) Map() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sceneMap
}

func (s *Session) Entities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sceneEntities))
	copy(out, s.sceneEntities)
	return out
}

func (s *Session) PartyPos() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partyPos[0], s.partyPos[1]
}

// SceneContext renders the scene mirror for prompt augmentation.
func (s *Session) SceneContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := "none"
	if len(s.sceneEntities) > 0 {
		entities = strings.Join(s.sceneEntities, ", ")
	}
	return fmt.Sprintf("[Scene: map=%s, entities=[%s], party=(%d,%d)]",
		s.sceneMap, entities, s.partyPos[0], s.partyPos[1])
}

// HPContext renders party HP for prompt augmentation.
func (s *Session) HPContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.party))
	for _, m := range s.party {
		if e, ok := s.partyHP[m.Name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %d/%d", m.Name, e.hp, e.maxHP))
		}
	}
	return "[HP Status: " + strings.Join(parts, ", ") + "]"
}

func (s *Session) FullContext() string {
	return s.SceneContext() + "\n" + s.HPContext()
}

func (s *Session) AddUserMessage(text string) {
	s.appendHistory(chat.Message{Role: chat.RoleUser, Content: text})
}

func (s *Session) AddAssistantMessage(text string) {
	s.appendHistory(chat.Message{Role: chat.RoleAssistant, Content: text})
}

func (s *Session) appendHistory(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = chat.Trim(append(s.history, msg), MaxHistory)
	s.lastActivity = s.now()
}

// History returns a copy of the conversation history.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
}

func (s *Session) IsStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastActivity) > StaleAfter
}

// TryBeginTurn marks a turn in flight. It returns false if one already
// is; a second command on the same connection is rejected, not queued.
func (s *Session) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnActive {
		return false
	}
	s.turnActive = true
	return true
}

func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnActive = false
}

// AccumulateXP credits amount to every tracked reward token and to the
// per-floor running total.
func (s *Session) AccumulateXP(amount int) {
	if amount <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.tokenIDs {
		s.pendingXP[id] += amount
	}
	s.floorXP += amount
}

// FlushPendingXP drains and returns accumulated per-token grants.
func (s *Session) FlushPendingXP() []XPGrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var grants []XPGrant
	for _, id := range s.tokenIDs {
		if amount := s.pendingXP[id]; amount > 0 {
			grants = append(grants, XPGrant{TokenID: id, Amount: amount})
		}
	}
	s.pendingXP = make(map[int64]int)
	return grants
}

// AdventureData snapshots per-floor stats for the reward collaborator.
func (s *Session) AdventureData(floor, result int) AdventureData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AdventureData{
		TokenIDs:  append([]int64(nil), s.tokenIDs...),
		Floor:     floor,
		Result:    result,
		XPEarned:  s.floorXP,
		KillCount: s.killCount,
	}
}

func (s *Session) ResetFloorTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killCount = 0
	s.floorXP = 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
