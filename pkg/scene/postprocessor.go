// Package scene is the corrective layer between the GM model and the
// client's visual state. The prompt tells the model to pair every
// narrative event with a scene command; compliance is unreliable, so
// after each turn a rule engine inspects what was parsed against the
// session's scene mirror and injects the commands the model forgot.
// Rules only ever add commands; they never override ones the model
// issued.
package scene

import (
	"log/slog"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/parser"
	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

// Walkable tile bounds for injected coordinates.
const (
	minX, maxX = 2, 17
	minY, maxY = 2, 12
)

var (
	reDeath = regexp.MustCompile(`(?i)\b(defeat|destroy|kill|slay|collapse|dies|died|slain|vanquish|fall|fallen|perish)\b|消滅|擊敗|死亡|倒下|击败|消灭`)

	reExplore = regexp.MustCompile(`(?i)advance|move|walk|continue|proceed|enter|venture|step|explore|forward|前進|進入|走|繼續|前进|进入|继续|向前|探索|往前|深入`)

	reFloorTransition = regexp.MustCompile(`(?i)\b(floor|descend|next level|deeper)\b|下一層|進入.{0,8}層|下一层|进入.{0,8}层`)

	reCombatStart = regexp.MustCompile(`(?i)\b(combat initiated|combat start|ambush|attack|engage)\b|战斗开始|戰鬥開始|進入戰鬥|进入战斗`)

	// reCombatInitiated matches only explicit combat-start announcements.
	// Narrative verbs like "ambush" or "attack" trigger the spawn rule
	// via reCombatStart but must not flip the combat flag.
	reCombatInitiated = regexp.MustCompile(`(?i)combat initiated|combat start|战斗开始|戰鬥開始|進入戰鬥|进入战斗`)

	reCombatEnd = regexp.MustCompile(`(?i)combat end|victory|战斗结束|勝利|胜利`)

	reHealTag = regexp.MustCompile(`\[HP:.+?:\+(\d+)\]`)

	reFloorNumber = regexp.MustCompile(`(?i)(?:floor|第)\s*(\d+)`)
)

// State is the slice of session state the post-processor reads and the
// one flag it may clear. Satisfied by *session.Session.
type State struct {
	Map       string
	Entities  []string
	PartyPosX int
	PartyPosY int
	InCombat  bool
}

// PostProcessor evaluates the injection rules for one completed turn.
// Build one per turn; it is not reused.
type PostProcessor struct {
	result *parser.TurnResult
	state  State
	floor  int
	logger *slog.Logger
	rng    *rand.Rand

	injected      []protocol.ServerMessage
	skipMove      bool
	clearedCombat bool
}

func NewPostProcessor(result *parser.TurnResult, state State, floor int, logger *slog.Logger) *PostProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessor{
		result: result,
		state:  state,
		floor:  floor,
		logger: logger,
	}
}

// WithRand fixes the random source used by the combat-spawn rule.
func (p *PostProcessor) WithRand(rng *rand.Rand) *PostProcessor {
	p.rng = rng
	return p
}

// Run evaluates all rules in fixed order and returns the injected
// scene commands. Each rule fires only when the model did not already
// emit the corresponding command this turn. InCombat clearing is
// reported by ShouldClearCombat, evaluated against pre-injection
// entity state; callers re-check after applying the injections.
func (p *PostProcessor) Run() []protocol.ServerMessage {
	p.roomTransition()
	p.combatEffect()
	p.deathCleanup()
	// Clearing here, before the movement rule, lets exploration resume
	// in the same turn the last enemy fell.
	if ShouldClearCombat(p.state.InCombat, p.state.Entities) {
		p.state.InCombat = false
		p.clearedCombat = true
		p.logger.Debug("auto-cleared combat flag, no enemies remain")
	}
	p.exploreMove()
	p.combatSpawn()
	return p.injected
}

// ClearedCombat reports whether Run auto-cleared the combat flag; the
// caller mirrors the clear onto the session.
func (p *PostProcessor) ClearedCombat() bool {
	return p.clearedCombat
}

// roomTransition injects set_map + move_party when a sys message
// narrates a floor transition the model forgot to visualize. Runs
// first because a wholesale reposition suppresses the movement rule.
func (p *PostProcessor) roomTransition() {
	if p.hasSceneCommand("set_map") {
		return
	}
	if !p.hasSysMatching(reFloorTransition) {
		return
	}
	target := RoomForFloor(p.floor)
	if target == p.state.Map {
		return
	}
	p.inject(protocol.Scene("set_map", target))
	p.inject(protocol.Scene("move_party", "9", "8"))
	p.skipMove = true
	p.logger.Debug("injected room transition", "room", target)
}

// combatEffect injects a visual effect for damage or roll narration:
// a heal burst at the party when the raw text contains a positive HP
// tag, otherwise a fireball at the best-guess enemy position.
func (p *PostProcessor) combatEffect() {
	if !p.hasMessageType(protocol.TypeDmg) && !p.hasMessageType(protocol.TypeRoll) {
		return
	}
	if p.hasSceneCommand("effect") {
		return
	}
	if reHealTag.MatchString(p.result.RawText) {
		p.inject(protocol.Scene("effect", "heal", itoa(p.state.PartyPosX), itoa(p.state.PartyPosY)))
		return
	}
	x, y := p.enemyPosition()
	p.inject(protocol.Scene("effect", "fireball", itoa(x), itoa(y)))
}

// deathCleanup removes the best-matching tracked enemy when narration
// describes a death the model never paired with a remove command.
func (p *PostProcessor) deathCleanup() {
	if p.hasSceneCommand("remove") {
		return
	}
	if !reDeath.MatchString(p.result.RawText) {
		return
	}
	enemies := EnemyEntities(p.state.Entities)
	if len(enemies) == 0 {
		return
	}
	target := p.matchEnemy(enemies)
	x := clamp(p.state.PartyPosX+3, minX, maxX)
	y := clamp(p.state.PartyPosY-2, minY, maxY)
	p.inject(protocol.Scene("effect", "smoke", itoa(x), itoa(y)))
	p.inject(protocol.Scene("remove", target))
	p.logger.Debug("injected enemy removal", "target", target)
}

// exploreMove nudges the party one tile forward so movement narration
// always produces visible motion. Only outside combat, and only when
// the model moved nothing itself.
func (p *PostProcessor) exploreMove() {
	if p.skipMove || p.state.InCombat {
		return
	}
	if p.hasSceneCommand("move_party") || p.hasSceneCommand("set_map") {
		return
	}
	if !reExplore.MatchString(p.result.RawText) {
		return
	}
	if p.state.PartyPosY > minY {
		p.inject(protocol.Scene("move_party", itoa(p.state.PartyPosX), itoa(p.state.PartyPosY-1)))
	}
}

// combatSpawn materializes 1-2 enemies when combat starts with nothing
// on the board: the model announced an ambush but spawned no one.
func (p *PostProcessor) combatSpawn() {
	if p.hasSceneCommand("spawn") {
		return
	}
	if !p.hasSysMatching(reCombatStart) {
		return
	}
	if len(EnemyEntities(p.state.Entities)) > 0 {
		return
	}

	detected := DetectEnemyType(p.result.RawText)
	pool := EnemiesForFloor(p.floor)
	positions := [2][2]int{
		{clamp(p.state.PartyPosX+3, minX, maxX), clamp(p.state.PartyPosY-2, minY, maxY)},
		{clamp(p.state.PartyPosX-3, minX, maxX), clamp(p.state.PartyPosY-2, minY, maxY)},
	}

	count := 1
	if p.intn(2) == 1 {
		count = 2
	}
	for i := 0; i < count; i++ {
		typ := detected
		if typ == "" {
			typ = pool[p.intn(len(pool))]
		}
		p.inject(protocol.Scene("spawn", typ, itoa(positions[i][0]), itoa(positions[i][1])))
		p.logger.Debug("injected combat spawn", "type", typ)
	}
}

// ShouldClearCombat reports whether the combat flag should drop given
// the current entity list. The model frequently forgets the explicit
// combat-end tag, so zero remaining enemies implies combat is over.
func ShouldClearCombat(inCombat bool, entities []string) bool {
	return inCombat && len(EnemyEntities(entities)) == 0
}

// CombatStartText reports whether sys text explicitly announces combat
// starting. Looser phrasing ("ambush", "engage") is left to the spawn rule.
func CombatStartText(text string) bool {
	return reCombatInitiated.MatchString(text)
}

// CombatEndText reports whether sys text announces combat ending.
func CombatEndText(text string) bool {
	return reCombatEnd.MatchString(text)
}

// FloorFromText extracts a floor number from sys text, or 0.
func FloorFromText(text string) int {
	m := reFloorNumber.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func (p *PostProcessor) inject(msg protocol.ServerMessage) {
	p.injected = append(p.injected, msg)
}

func (p *PostProcessor) hasSceneCommand(cmd string) bool {
	for _, m := range p.result.Messages {
		if m.Type == protocol.TypeScene && m.Command == cmd {
			return true
		}
	}
	for _, m := range p.injected {
		if m.Type == protocol.TypeScene && m.Command == cmd {
			return true
		}
	}
	return false
}

func (p *PostProcessor) hasMessageType(t protocol.MessageType) bool {
	for _, m := range p.result.Messages {
		if m.Type == t {
			return true
		}
	}
	return false
}

func (p *PostProcessor) hasSysMatching(re *regexp.Regexp) bool {
	for _, m := range p.result.Messages {
		if m.Type == protocol.TypeSys && re.MatchString(m.Text) {
			return true
		}
	}
	return false
}

// enemyPosition guesses where this turn's action happened: the first
// spawn coordinates issued this turn, else an offset from the party.
// Best-effort visual cue only; with several enemies it may point at
// the wrong tile.
func (p *PostProcessor) enemyPosition() (int, int) {
	for _, m := range p.result.Messages {
		if m.Type != protocol.TypeScene || m.Command != "spawn" || len(m.Args) < 3 {
			continue
		}
		x, errX := strconv.Atoi(m.Args[1])
		y, errY := strconv.Atoi(m.Args[2])
		if errX == nil && errY == nil {
			return clamp(x, minX, maxX), clamp(y, minY, maxY)
		}
	}
	return clamp(p.state.PartyPosX+3, minX, maxX), clamp(p.state.PartyPosY-2, minY, maxY)
}

// matchEnemy picks the tracked enemy whose type the narration names,
// else the first tracked enemy.
func (p *PostProcessor) matchEnemy(enemies []string) string {
	lower := strings.ToLower(p.result.RawText)
	for _, id := range enemies {
		if strings.Contains(lower, EntityType(id)) {
			return id
		}
	}
	return enemies[0]
}

func (p *PostProcessor) intn(n int) int {
	if p.rng != nil {
		return p.rng.Intn(n)
	}
	return rand.Intn(n)
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

func itoa(v int) string { return strconv.Itoa(v) }
