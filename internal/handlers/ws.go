package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shadowmere/dungeon-gm/internal/services"
	"github.com/shadowmere/dungeon-gm/pkg/prompts"
	"github.com/shadowmere/dungeon-gm/pkg/protocol"
	"github.com/shadowmere/dungeon-gm/pkg/rewards"
	"github.com/shadowmere/dungeon-gm/pkg/scene"
	"github.com/shadowmere/dungeon-gm/pkg/session"
)

const defaultStageName = "the Shadowmere Depths"

// WSHandler owns the WebSocket endpoint: one connection, one session,
// one GM turn at a time.
type WSHandler struct {
	upgrader    websocket.Upgrader
	provider    services.GMProvider
	sessions    *session.Manager
	store       *prompts.Store
	rewards     rewards.Granter
	turnTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	conns map[string]*wsConn
}

func NewWSHandler(provider services.GMProvider, sessions *session.Manager, store *prompts.Store, granter rewards.Granter, turnTimeout time.Duration, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser and CLI clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		provider:    provider,
		sessions:    sessions,
		store:       store,
		rewards:     granter,
		turnTimeout: turnTimeout,
		logger:      logger,
		conns:       make(map[string]*wsConn),
	}
}

// wsConn serializes writes; turn goroutines and the read loop both
// send on the same connection.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
}

func (c *wsConn) send(msg protocol.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("write failed", "error", err)
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	log := h.logger.With("conn_id", connID)
	c := &wsConn{conn: conn, logger: log}

	h.mu.Lock()
	h.conns[connID] = c
	h.mu.Unlock()

	log.Info("client connected", "remote_addr", r.RemoteAddr)
	defer h.closeConn(connID, c, log)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read failed", "error", err)
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(protocol.Error("invalid message"))
			continue
		}
		if err := msg.Validate(); err != nil {
			c.send(protocol.Error(err.Error()))
			continue
		}

		switch msg.Type {
		case protocol.ClientInit:
			h.handleInit(connID, c, msg, log)
		case protocol.ClientCommand:
			h.handleCommand(connID, c, msg, log)
		}
	}
}

func (h *WSHandler) handleInit(connID string, c *wsConn, msg protocol.ClientMessage, log *slog.Logger) {
	sess := session.New(msg.Party, msg.Locale, msg.Floor, msg.StageName)
	h.sessions.Create(connID, sess)

	log.Info("session initialized",
		"session_id", sess.ID(),
		"party_size", len(msg.Party),
		"floor", sess.Floor(),
		"locale", sess.Locale())

	stageName := sess.StageName()
	if stageName == "" {
		stageName = defaultStageName
	}
	roomType := scene.RoomForFloor(sess.Floor())
	opening := fmt.Sprintf(
		"The party enters %s, Floor %d. Use [SCENE:set_map:%s] to set the starting room, then [SCENE:move_party:9:8] to place the party. Describe the opening scene: the environment, atmosphere, and what the party sees. Have 1-2 companions react.",
		stageName, sess.Floor(), roomType)
	sess.AddUserMessage(opening)

	if !sess.TryBeginTurn() {
		c.send(protocol.Error("A turn is already in progress."))
		return
	}
	go func() {
		defer sess.EndTurn()
		h.runTurn(c, sess, log)
	}()
}

func (h *WSHandler) handleCommand(connID string, c *wsConn, msg protocol.ClientMessage, log *slog.Logger) {
	sess := h.sessions.Lookup(connID)
	if sess == nil {
		c.send(protocol.Error("No active session. Send init first."))
		return
	}

	if !sess.TryBeginTurn() {
		c.send(protocol.Error("The game master is still resolving your last action."))
		return
	}

	// Prefix scene and HP context so the model stays synchronized with
	// server-side state.
	sess.AddUserMessage(fmt.Sprintf("%s\nPlayer: %s", sess.FullContext(), msg.Text))

	go func() {
		defer sess.EndTurn()
		h.runTurn(c, sess, log)
	}()
}

// runTurn executes one full GM turn: build the system prompt, stream
// the provider response, apply HP and scene effects, post-process, and
// close the stream.
func (h *WSHandler) runTurn(c *wsConn, sess *session.Session, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), h.turnTimeout)
	defer cancel()

	systemPrompt := prompts.BuildSystemPrompt(
		h.store,
		sess.Party(),
		sess.Floor(),
		sess.InCombat(),
		sess.HPSnapshot(),
		sess.Locale(),
		sess.StageName(),
	)

	startFloor := sess.Floor()

	c.send(protocol.StreamStart())

	result := h.provider.StreamTurn(ctx, systemPrompt, sess.History(), c.send, sess.ProviderSessionID())
	if result.ProviderSessionID != "" {
		sess.SetProviderSessionID(result.ProviderSessionID)
	}

	var hpUpdates []protocol.HPUpdate
	for _, hc := range result.HPChanges {
		if update := sess.ApplyHP(hc.Name, hc.Delta); update != nil {
			hpUpdates = append(hpUpdates, *update)
		}
	}
	if len(hpUpdates) > 0 {
		c.send(protocol.HPUpdates(hpUpdates))
	}

	for _, m := range result.Messages {
		switch m.Type {
		case protocol.TypeScene:
			sess.UpdateScene(m.Command, m.Args)
		case protocol.TypeSys:
			h.applySysEvent(sess, m.Text, log)
		case protocol.TypeXPGain:
			sess.AccumulateXP(m.Amount)
		}
	}

	if sess.Floor() != startFloor {
		h.flushFloor(sess, startFloor, 1, log)
	}

	px, py := sess.PartyPos()
	state := scene.State{
		Map:       sess.Map(),
		Entities:  sess.Entities(),
		PartyPosX: px,
		PartyPosY: py,
		InCombat:  sess.InCombat(),
	}
	pp := scene.NewPostProcessor(result, state, sess.Floor(), log)
	for _, msg := range pp.Run() {
		c.send(msg)
		sess.UpdateScene(msg.Command, msg.Args)
	}
	if pp.ClearedCombat() || scene.ShouldClearCombat(sess.InCombat(), sess.Entities()) {
		sess.SetInCombat(false)
	}

	sess.AddAssistantMessage(result.RawText)

	c.send(protocol.StreamEnd())
}

// applySysEvent mirrors GM-announced state changes onto the session.
func (h *WSHandler) applySysEvent(sess *session.Session, text string, log *slog.Logger) {
	switch {
	case scene.CombatStartText(text):
		sess.SetInCombat(true)
	case scene.CombatEndText(text):
		sess.SetInCombat(false)
	default:
		if floor := scene.FloorFromText(text); floor > 0 && floor != sess.Floor() {
			log.Info("floor transition", "from", sess.Floor(), "to", floor)
			sess.SetFloor(floor)
		}
	}
}

// flushFloor reports a completed floor to the reward collaborator and
// resets per-floor counters. Delivery is fire-and-forget.
func (h *WSHandler) flushFloor(sess *session.Session, floor, result int, log *slog.Logger) {
	data := sess.AdventureData(floor, result)
	grants := sess.FlushPendingXP()
	sess.ResetFloorTracking()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		for _, g := range grants {
			if err := h.rewards.GrantXP(ctx, g.TokenID, g.Amount); err != nil {
				log.Error("xp grant failed", "token_id", g.TokenID, "error", err)
			}
		}
		if len(data.TokenIDs) > 0 {
			if err := h.rewards.RecordAdventure(ctx, data); err != nil {
				log.Error("adventure record failed", "error", err)
			}
		}
	}()
}

// closeConn tears down the connection's session, flushing any earned
// rewards as an abandoned run.
func (h *WSHandler) closeConn(connID string, c *wsConn, log *slog.Logger) {
	h.mu.Lock()
	delete(h.conns, connID)
	h.mu.Unlock()

	if sess := h.sessions.Lookup(connID); sess != nil {
		h.flushFloor(sess, sess.Floor(), 0, log)
		h.sessions.Destroy(connID)
	}

	_ = c.conn.Close()
	log.Info("client disconnected")
}

// CloseStale is the session sweeper hook. The sweep has already pulled
// the session from the registry, so rewards are flushed here; closing
// the socket then unwinds the read loop for the rest of the teardown.
func (h *WSHandler) CloseStale(connID string, sess *session.Session) {
	log := h.logger.With("conn_id", connID)
	if sess != nil {
		h.flushFloor(sess, sess.Floor(), 0, log)
	}

	h.mu.Lock()
	c := h.conns[connID]
	h.mu.Unlock()
	if c == nil {
		return
	}
	log.Info("closing stale connection")
	_ = c.conn.Close()
}
