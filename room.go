package main

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Messages coming from clients
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
}

type startGamePayload struct {
	InitialTarget string `json:"initialTarget"`
}

type setTopicPayload struct {
	Topic string `json:"topic"`
}

type submitPromptPayload struct {
	Prompt string `json:"prompt"`
}

type requestAdvancePayload struct {
	NextTarget string `json:"nextTarget"`
}

type applyRoundResultsPayload struct {
	RoundID string             `json:"roundId"`
	Results []ScoredSubmission `json:"results"`
}

type leaveRoomPayload struct {
	ClearRoom bool `json:"clearRoom"`
}

// Messages sent to clients
type serverMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// stateMessage serializes the snapshot eagerly, on the actor goroutine. The
// write pumps marshal queued messages later, concurrently with further
// mutations, so handing them the live *RoomState would tear snapshots.
func stateMessage(state *RoomState) serverMessage {
	data, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Str("room", state.RoomCode).Msg("state snapshot encoding failed")
		data = []byte("{}")
	}

	return serverMessage{Type: "state", Payload: json.RawMessage(data)}
}

func errorMessage(err error) serverMessage {
	return serverMessage{Type: "error", Payload: messagePayload{Message: err.Error()}}
}

func toastMessage(text string) serverMessage {
	return serverMessage{Type: "toast", Payload: messagePayload{Message: text}}
}

type Client struct {
	conn         *websocket.Conn
	send         chan serverMessage
	connectionID string
	limiter      *rate.Limiter
}

type envelope struct {
	client *Client
	msg    clientMessage
}

// Room is the coordinator: one goroutine per room code owning one RoomState.
// Every mutation flows through run(), one message at a time, and each
// successful mutation is persisted and broadcast as a full snapshot.
type Room struct {
	code  string
	cfg   *Config
	store *RoomStore
	state *RoomState

	clients  map[*Client]bool
	register chan *Client
	unreg    chan *Client
	inbox    chan envelope
	shutdown chan struct{}

	mu         sync.RWMutex
	lastActive time.Time
}

func newRoom(cfg *Config, store *RoomStore, code string) *Room {
	state, err := store.Load(code)
	if err != nil {
		log.Error().Err(err).Str("room", code).Msg("room rehydration failed, starting fresh")
		state = nil
	}
	if state == nil {
		state = newRoomState(code, cfg)
	} else {
		// Sockets did not survive the restart; connection flags must not either.
		for _, p := range state.Participants {
			p.Connected = false
			p.ConnectionID = ""
		}
		state.touch()
	}

	return &Room{
		code:       code,
		cfg:        cfg,
		store:      store,
		state:      state,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbox:      make(chan envelope, 64),
		shutdown:   make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (rm *Room) run() {
	for {
		select {
		case c := <-rm.register:
			rm.touchActive()
			rm.clients[c] = true
			rm.sendTo(c, toastMessage("Connected. Join the room to sync state."))

		case c := <-rm.unreg:
			rm.touchActive()
			if _, ok := rm.clients[c]; ok {
				delete(rm.clients, c)
				close(c.send)
			}
			if rm.state.findByConnection(c.connectionID) != nil {
				rm.state.markDisconnected(c.connectionID)
				rm.persist()
				rm.broadcastState()
			}

		case env := <-rm.inbox:
			rm.touchActive()
			rm.handleMessage(env.client, env.msg)

		case <-rm.shutdown:
			rm.persist()
			rm.closeAll()

			return
		}
	}
}

func (rm *Room) touchActive() {
	rm.mu.Lock()
	rm.lastActive = time.Now()
	rm.mu.Unlock()
}

func (rm *Room) sendTo(c *Client, msg serverMessage) {
	select {
	case c.send <- msg:
	default:
		delete(rm.clients, c)
		close(c.send)
	}
}

// sendAsync is the only send path safe outside the run goroutine: it never
// touches the clients map, so the read pump can use it directly.
func (rm *Room) sendAsync(c *Client, msg serverMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (rm *Room) broadcastState() {
	msg := stateMessage(rm.state)
	for client := range rm.clients {
		select {
		case client.send <- msg:
		default:
			delete(rm.clients, client)
			close(client.send)
		}
	}
}

func (rm *Room) persist() {
	if err := rm.store.Save(rm.state); err != nil {
		log.Error().Err(err).Str("room", rm.code).Msg("room state persist failed")
	}
}

// handleMessage validates before mutating: a rejected message sends a
// private error and leaves both state and peers untouched.
func (rm *Room) handleMessage(c *Client, msg clientMessage) {
	switch msg.Type {
	case "join":
		rm.handleJoin(c, msg.Payload)
	case "start_game":
		rm.handleStartGame(c, msg.Payload)
	case "set_topic":
		rm.handleSetTopic(c, msg.Payload)
	case "submit_prompt":
		rm.handleSubmitPrompt(c, msg.Payload)
	case "request_advance":
		rm.handleRequestAdvance(c, msg.Payload)
	case "apply_round_results":
		rm.handleApplyRoundResults(c, msg.Payload)
	case "reset_game":
		rm.handleResetGame(c)
	case "leave_room":
		rm.handleLeaveRoom(c, msg.Payload)
	case "ping":
		rm.handlePing(c)
	default:
		rm.sendTo(c, errorMessage(errUnsupportedMessageType))
	}
}

func (rm *Room) handleJoin(c *Client, raw json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		rm.sendTo(c, errorMessage(errInvalidPayload))
		return
	}
	joinRole := role(payload.Role)
	if joinRole != rolePlayer && joinRole != roleGuest {
		rm.sendTo(c, errorMessage(errInvalidPayload))
		return
	}

	nickname := trimToMax(payload.Nickname, nicknameMaxChars)
	if payload.SessionID == "" || nickname == "" {
		rm.sendTo(c, errorMessage(errNicknameRequired))
		return
	}
	if rm.state.isNicknameTaken(nickname, payload.SessionID, true) {
		rm.sendTo(c, errorMessage(errNicknameTaken))
		return
	}

	// Reconnecting players are exempt from the cap; they already hold a seat.
	existing := rm.state.findParticipant(payload.SessionID)
	alreadyPlayer := existing != nil && existing.Role == rolePlayer
	reconnecting := rm.state.findOfflineByNickname(nickname, payload.SessionID)
	reconnectingPlayer := reconnecting != nil && reconnecting.Role == rolePlayer
	if joinRole == rolePlayer && !alreadyPlayer && !reconnectingPlayer &&
		rm.state.playerCount() >= rm.state.MaxPlayers {
		rm.sendTo(c, errorMessage(errRoomFull))
		return
	}

	rm.state.upsertParticipant(payload.SessionID, c.connectionID, nickname, joinRole)
	logf(rm.cfg, "ROOMS: %q joined %s as %s", nickname, rm.code, joinRole)

	rm.sendTo(c, stateMessage(rm.state))
	rm.persist()
	rm.broadcastState()
}

func (rm *Room) handleStartGame(c *Client, raw json.RawMessage) {
	var payload startGamePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			rm.sendTo(c, errorMessage(errInvalidPayload))
			return
		}
	}
	if rm.state.playerCount() < 1 {
		rm.sendTo(c, errorMessage(errNeedPlayers))
		return
	}

	rm.state.startGame(payload.InitialTarget)
	logf(rm.cfg, "ROOMS: Game started in %s (%d rounds)", rm.code, rm.state.TotalRounds)

	rm.persist()
	rm.broadcastState()
}

func (rm *Room) handleSetTopic(c *Client, raw json.RawMessage) {
	var payload setTopicPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		rm.sendTo(c, errorMessage(errInvalidPayload))
		return
	}

	actor := rm.state.findByConnection(c.connectionID)
	if actor == nil || actor.Role != rolePlayer {
		rm.sendTo(c, errorMessage(errNotAPlayer))
		return
	}
	if rm.state.HostSessionID != "" && actor.SessionID != rm.state.HostSessionID {
		rm.sendTo(c, errorMessage(errUnauthorized))
		return
	}
	if err := rm.state.setGameTopic(payload.Topic); err != nil {
		rm.sendTo(c, errorMessage(err))
		return
	}

	rm.persist()
	rm.broadcastState()
}

func (rm *Room) handleSubmitPrompt(c *Client, raw json.RawMessage) {
	var payload submitPromptPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		rm.sendTo(c, errorMessage(errInvalidPayload))
		return
	}

	submitter := rm.state.findByConnection(c.connectionID)
	if submitter == nil {
		rm.sendTo(c, errorMessage(errNotAPlayer))
		return
	}
	if err := rm.state.submitPrompt(submitter.SessionID, payload.Prompt); err != nil {
		rm.sendTo(c, errorMessage(err))
		return
	}

	// The last submitter's own message can close out the phase.
	rm.state.maybeAdvanceFromPrompting()

	rm.persist()
	rm.broadcastState()
}

func (rm *Room) handleRequestAdvance(c *Client, raw json.RawMessage) {
	var payload requestAdvancePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			rm.sendTo(c, errorMessage(errInvalidPayload))
			return
		}
	}

	// Only the host's target is honored; anyone may still drive the clock.
	// A deadline-expired intermission advances even with no target at all,
	// beginning the next round with an empty one.
	actor := rm.state.findByConnection(c.connectionID)
	isHost := actor != nil && actor.Role == rolePlayer &&
		actor.SessionID == rm.state.HostSessionID
	nextTarget := ""
	if isHost {
		nextTarget = payload.NextTarget
	}

	advanced := rm.state.maybeAdvanceFromPrompting()
	if !advanced {
		advanced = rm.state.maybeAdvancePostResults(nextTarget)
	}

	if advanced {
		rm.persist()
		rm.broadcastState()
		return
	}

	// Keep stale pollers in sync even when nothing moved.
	rm.sendTo(c, stateMessage(rm.state))
}

func (rm *Room) handleApplyRoundResults(c *Client, raw json.RawMessage) {
	var payload applyRoundResultsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		rm.sendTo(c, errorMessage(errInvalidPayload))
		return
	}
	if payload.RoundID == "" || payload.Results == nil {
		rm.sendTo(c, errorMessage(errInvalidPayload))
		return
	}
	for _, result := range payload.Results {
		if result.PlayerID == "" {
			rm.sendTo(c, errorMessage(errInvalidPayload))
			return
		}
	}

	normalized := rm.normalizeResults(payload.Results)
	if err := rm.state.applyRoundResults(payload.RoundID, normalized); err != nil {
		rm.sendTo(c, errorMessage(err))
		return
	}
	logf(rm.cfg, "ROOMS: Round %d resolved in %s (%d scored)",
		rm.state.RoundIndex, rm.code, len(normalized))

	rm.persist()
	rm.broadcastState()
}

// normalizeResults is the trust boundary for resolver-reported scores:
// results for players outside this round's submissions are dropped, the
// prompt is replaced with the coordinator's stored copy, the cheat filter is
// re-run over that copy, and every recomputable score field is recomputed
// from the stored answer and target. Only the semantic component, which
// needs embeddings the server does not have, is taken as reported (clamped).
func (rm *Room) normalizeResults(results []ScoredSubmission) []ScoredSubmission {
	prompts := make(map[string]string, len(rm.state.Submissions))
	for _, submission := range rm.state.Submissions {
		prompts[submission.PlayerID] = submission.Prompt
	}

	normalized := make([]ScoredSubmission, 0, len(results))
	for _, result := range results {
		prompt, submitted := prompts[result.PlayerID]
		if !submitted {
			continue
		}
		result.Prompt = prompt
		result.Answer = trimToMax(result.Answer, maxTextLength)
		result.HallucinationPenalty = clampFloat(result.HallucinationPenalty, 0, 1)

		if !result.Rejected {
			if _, reason := checkPromptForCheating(prompt, rm.state.CurrentTarget, -1); reason != "" {
				result.Rejected = true
				result.RejectionReason = reason
			}
		}

		if result.Rejected {
			result.ExactMatch = false
			result.SemanticScore = 0
			result.LexicalScore = 0
			result.ScoreDelta = 0
		} else {
			scored := computeScore(
				result.Answer,
				rm.state.CurrentTarget,
				clampFloat(result.SemanticScore, 0, 1),
				lexicalCloseness(result.Answer, rm.state.CurrentTarget),
			)
			result.ExactMatch = scored.exactMatch
			result.SemanticScore = scored.semanticScore
			result.LexicalScore = scored.lexicalScore
			result.ScoreDelta = scored.scoreDelta
		}

		normalized = append(normalized, result)
	}
	return normalized
}

func (rm *Room) handleResetGame(c *Client) {
	actor := rm.state.findByConnection(c.connectionID)
	if actor == nil || actor.Role != rolePlayer {
		rm.sendTo(c, errorMessage(errNotAPlayer))
		return
	}
	if rm.state.HostSessionID != "" && actor.SessionID != rm.state.HostSessionID {
		rm.sendTo(c, errorMessage(errUnauthorized))
		return
	}

	rm.state.resetGame()
	logf(rm.cfg, "ROOMS: Game reset in %s", rm.code)

	rm.persist()
	rm.broadcastState()
}

func (rm *Room) handleLeaveRoom(c *Client, raw json.RawMessage) {
	var payload leaveRoomPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			rm.sendTo(c, errorMessage(errInvalidPayload))
			return
		}
	}

	actor := rm.state.findByConnection(c.connectionID)
	if actor == nil {
		rm.sendTo(c, stateMessage(rm.state))
		return
	}

	isHost := actor.Role == rolePlayer && rm.state.HostSessionID == actor.SessionID
	if payload.ClearRoom && rm.state.Phase == phaseLobby && isHost {
		rm.state.clearRoomParticipants()
		logf(rm.cfg, "ROOMS: %s cleared by host", rm.code)
	} else {
		rm.state.removeParticipant(actor.SessionID)
	}

	rm.persist()
	rm.broadcastState()
}

func (rm *Room) handlePing(c *Client) {
	advanced := rm.state.maybeAdvanceFromPrompting()
	if !advanced {
		advanced = rm.state.maybeAdvancePostResults("")
	}

	if advanced {
		rm.persist()
		rm.broadcastState()
		return
	}

	rm.sendTo(c, stateMessage(rm.state))
	rm.persist()
}

// closeAll disconnects all clients; runs on the actor goroutine only.
func (rm *Room) closeAll() {
	for c := range rm.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(rm.clients, c)
	}
}

// RoomManager holds the live coordinators keyed by room code. Rooms drop
// out of memory when idle; their state stays in the store and is rehydrated
// on the next connection.
type RoomManager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	cfg         *Config
	store       *RoomStore
	idleTimeout time.Duration
}

func newRoomManager(cfg *Config, store *RoomStore) *RoomManager {
	gm := &RoomManager{
		rooms:       make(map[string]*Room),
		cfg:         cfg,
		store:       store,
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *RoomManager) getRoom(code string) *Room {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if room, ok := gm.rooms[code]; ok {
		return room
	}

	room := newRoom(gm.cfg, gm.store, code)
	gm.rooms[code] = room
	go room.run()
	return room
}

// newRoomCode generates a crypto-random code and ensures it collides with
// neither a live room nor a persisted one.
func (gm *RoomManager) newRoomCode() string {
	const letters = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	for {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 4)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		gm.mu.Lock()
		_, live := gm.rooms[code]
		gm.mu.Unlock()
		if live {
			continue
		}

		persisted, err := gm.store.Load(code)
		if err == nil && persisted == nil {
			return code
		}
	}
}

// reaperLoop periodically unloads rooms that have been idle longer than
// idleTimeout. Closing a room's clients is handed to its own goroutine via
// the inbox-free path since the actor may be blocked on channel sends.
func (gm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for code, room := range gm.rooms {
			room.mu.RLock()
			last := room.lastActive
			room.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.rooms, code)
				close(room.shutdown)
				logf(gm.cfg, "ROOMS: Unloaded idle room %s", code)
			}
		}
		gm.mu.Unlock()
	}
}

func newConnectionID() string {
	return uuid.NewString()
}
