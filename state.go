package main

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// The strings below are the wire-level error taxonomy; they travel verbatim
// as the payload of "error" messages.
var (
	errInvalidPayload               = errors.New("InvalidPayload")
	errNicknameRequired             = errors.New("NicknameRequired")
	errNicknameTaken                = errors.New("NicknameTaken")
	errRoomFull                     = errors.New("RoomFull")
	errNeedPlayers                  = errors.New("NeedPlayers")
	errTopicLocked                  = errors.New("TopicLocked")
	errNotAPlayer                   = errors.New("NotAPlayer")
	errRoundNotAcceptingSubmissions = errors.New("RoundNotAcceptingSubmissions")
	errEmptyPrompt                  = errors.New("EmptyPrompt")
	errRoundMismatch                = errors.New("RoundMismatch")
	errNotResolving                 = errors.New("NotResolving")
	errUnauthorized                 = errors.New("Unauthorized")
	errUnsupportedMessageType       = errors.New("UnsupportedMessageType")
)

type roomPhase string

const (
	phaseLobby         roomPhase = "lobby"
	phasePrompting     roomPhase = "prompting"
	phaseResolving     roomPhase = "resolving"
	phaseRoundComplete roomPhase = "round_complete"
	phaseGameComplete  roomPhase = "game_complete"
)

type role string

const (
	rolePlayer role = "player"
	roleGuest  role = "guest"
)

type roundStatus string

const (
	statusInLobby        roundStatus = "in_lobby"
	statusEnteringPrompt roundStatus = "entering_prompt"
	statusWaiting        roundStatus = "waiting_for_others"
	statusRoundComplete  roundStatus = "round_complete"
	statusOffline        roundStatus = "offline"
)

type Participant struct {
	SessionID       string      `json:"sessionId"`
	ConnectionID    string      `json:"connectionId"`
	Nickname        string      `json:"nickname"`
	Role            role        `json:"role"`
	Connected       bool        `json:"connected"`
	JoinedAt        int64       `json:"joinedAt"`
	Score           int         `json:"score"`
	RoundStatus     roundStatus `json:"roundStatus"`
	SubmittedPrompt bool        `json:"submittedPrompt"`
}

type RoundSubmission struct {
	PlayerID    string `json:"playerId"`
	Prompt      string `json:"prompt"`
	SubmittedAt int64  `json:"submittedAt"`
}

type ScoredSubmission struct {
	PlayerID             string  `json:"playerId"`
	Prompt               string  `json:"prompt"`
	Answer               string  `json:"answer"`
	ExactMatch           bool    `json:"exactMatch"`
	SemanticScore        float64 `json:"semanticScore"`
	LexicalScore         float64 `json:"lexicalScore"`
	HallucinationPenalty float64 `json:"hallucinationPenalty"`
	ScoreDelta           int     `json:"scoreDelta"`
	Rejected             bool    `json:"rejected"`
	RejectionReason      string  `json:"rejectionReason,omitempty"`
}

// RoundSnapshot entries are append-only; submissions and results are copied
// in, never aliased to the live round's slices.
type RoundSnapshot struct {
	RoundIndex  int                `json:"roundIndex"`
	RoundID     string             `json:"roundId"`
	Target      string             `json:"target"`
	StartedAt   int64              `json:"startedAt"`
	EndsAt      int64              `json:"endsAt"`
	Submissions []RoundSubmission  `json:"submissions"`
	Results     []ScoredSubmission `json:"results"`
}

// RoomState is the whole truth for one room. It is owned exclusively by that
// room's coordinator goroutine; every method below assumes single-writer
// access and mutates in place. Timestamps are millisecond epochs, zero
// meaning unset.
type RoomState struct {
	RoomCode            string             `json:"roomCode"`
	Phase               roomPhase          `json:"phase"`
	GameTopic           string             `json:"gameTopic"`
	RoundIndex          int                `json:"roundIndex"`
	TotalRounds         int                `json:"totalRounds"`
	MaxPlayers          int                `json:"maxPlayers"`
	PromptSeconds       int                `json:"promptSeconds"`
	IntermissionSeconds int                `json:"intermissionSeconds"`
	CreatedAt           int64              `json:"createdAt"`
	UpdatedAt           int64              `json:"updatedAt"`
	PhaseEndsAt         int64              `json:"phaseEndsAt"`
	RoundStartedAt      int64              `json:"roundStartedAt"`
	HostSessionID       string             `json:"hostSessionId"`
	ResolverSessionID   string             `json:"resolverSessionId"`
	Participants        []*Participant     `json:"participants"`
	CurrentTarget       string             `json:"currentTarget"`
	CurrentRoundID      string             `json:"currentRoundId"`
	Submissions         []RoundSubmission  `json:"submissions"`
	LastRoundResults    []ScoredSubmission `json:"lastRoundResults"`
	RoundHistory        []RoundSnapshot    `json:"roundHistory"`
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newRoundID() string {
	return uuid.NewString()
}

func newRoomState(roomCode string, cfg *Config) *RoomState {
	createdAt := nowMs()
	return &RoomState{
		RoomCode:            roomCode,
		Phase:               phaseLobby,
		TotalRounds:         cfg.totalRounds,
		MaxPlayers:          cfg.maxPlayers,
		PromptSeconds:       int(cfg.promptTimeout / time.Second),
		IntermissionSeconds: int(cfg.intermission / time.Second),
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
		Participants:        []*Participant{},
		Submissions:         []RoundSubmission{},
		RoundHistory:        []RoundSnapshot{},
	}
}

func (s *RoomState) findParticipant(sessionID string) *Participant {
	if sessionID == "" {
		return nil
	}
	for _, p := range s.Participants {
		if p.SessionID == sessionID {
			return p
		}
	}
	return nil
}

func (s *RoomState) findByConnection(connectionID string) *Participant {
	if connectionID == "" {
		return nil
	}
	for _, p := range s.Participants {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

// findOfflineByNickname locates the disconnected participant a rejoining
// client should merge into.
func (s *RoomState) findOfflineByNickname(nickname, excludeSessionID string) *Participant {
	for _, p := range s.Participants {
		if p.Connected || p.SessionID == excludeSessionID {
			continue
		}
		if strings.EqualFold(p.Nickname, nickname) {
			return p
		}
	}
	return nil
}

func (s *RoomState) isNicknameTaken(nickname, excludeSessionID string, connectedOnly bool) bool {
	for _, p := range s.Participants {
		if p.SessionID == excludeSessionID {
			continue
		}
		if connectedOnly && !p.Connected {
			continue
		}
		if strings.EqualFold(p.Nickname, nickname) {
			return true
		}
	}
	return false
}

func (s *RoomState) connectedPlayers() []*Participant {
	players := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Connected && p.Role == rolePlayer {
			players = append(players, p)
		}
	}
	return players
}

func (s *RoomState) playerCount() int {
	count := 0
	for _, p := range s.Participants {
		if p.Role == rolePlayer {
			count++
		}
	}
	return count
}

// rebindSession rewrites every field that can hold a participant id. Adding
// a new id-bearing field to the model means adding it here too.
func (s *RoomState) rebindSession(oldID, newID string) {
	if oldID == newID || oldID == "" {
		return
	}
	if p := s.findParticipant(oldID); p != nil {
		p.SessionID = newID
	}
	if s.HostSessionID == oldID {
		s.HostSessionID = newID
	}
	if s.ResolverSessionID == oldID {
		s.ResolverSessionID = newID
	}
	for i := range s.Submissions {
		if s.Submissions[i].PlayerID == oldID {
			s.Submissions[i].PlayerID = newID
		}
	}
	for i := range s.LastRoundResults {
		if s.LastRoundResults[i].PlayerID == oldID {
			s.LastRoundResults[i].PlayerID = newID
		}
	}
	for ri := range s.RoundHistory {
		snapshot := &s.RoundHistory[ri]
		for i := range snapshot.Submissions {
			if snapshot.Submissions[i].PlayerID == oldID {
				snapshot.Submissions[i].PlayerID = newID
			}
		}
		for i := range snapshot.Results {
			if snapshot.Results[i].PlayerID == oldID {
				snapshot.Results[i].PlayerID = newID
			}
		}
	}
}

// electHost keeps the host invariant: a lone connected player always takes
// the seat from a missing, demoted, or disconnected host; otherwise the
// earliest-joined player is seated only when no host reference survives.
func (s *RoomState) electHost() {
	host := s.findParticipant(s.HostSessionID)
	if host != nil && host.Role == rolePlayer && host.Connected {
		return
	}
	if players := s.connectedPlayers(); len(players) == 1 {
		s.HostSessionID = players[0].SessionID
		return
	}
	if host != nil && host.Role == rolePlayer {
		// Disconnected host keeps the seat until someone is alone in the room.
		return
	}
	s.HostSessionID = ""
	for _, p := range s.Participants {
		if p.Role == rolePlayer {
			s.HostSessionID = p.SessionID
			break
		}
	}
}

// selectResolver picks the earliest-joined connected player.
func (s *RoomState) selectResolver() string {
	var resolver *Participant
	for _, p := range s.Participants {
		if !p.Connected || p.Role != rolePlayer {
			continue
		}
		if resolver == nil || p.JoinedAt < resolver.JoinedAt {
			resolver = p
		}
	}
	if resolver == nil {
		return ""
	}
	return resolver.SessionID
}

func (s *RoomState) deriveRoundStatus(p *Participant) roundStatus {
	if !p.Connected {
		return statusOffline
	}
	if p.Role == roleGuest {
		switch s.Phase {
		case phaseLobby:
			return statusInLobby
		case phaseRoundComplete, phaseGameComplete:
			return statusRoundComplete
		default:
			return statusWaiting
		}
	}
	switch s.Phase {
	case phaseLobby:
		return statusInLobby
	case phasePrompting:
		if p.SubmittedPrompt {
			return statusWaiting
		}
		return statusEnteringPrompt
	case phaseResolving:
		return statusWaiting
	default:
		return statusRoundComplete
	}
}

// touch re-derives every participant's status from scratch; statuses are
// never written anywhere else.
func (s *RoomState) touch() {
	for _, p := range s.Participants {
		p.RoundStatus = s.deriveRoundStatus(p)
	}
	s.UpdatedAt = nowMs()
}

// upsertParticipant is the idempotent join/rejoin. A disconnected
// participant with the same nickname is merged into the joining session,
// carrying score and history references across the reconnect.
func (s *RoomState) upsertParticipant(sessionID, connectionID, nickname string, r role) {
	nickname = trimToMax(nickname, nicknameMaxChars)

	p := s.findParticipant(sessionID)
	if p == nil {
		if offline := s.findOfflineByNickname(nickname, sessionID); offline != nil {
			s.rebindSession(offline.SessionID, sessionID)
			p = offline
		}
	}

	if p != nil {
		p.ConnectionID = connectionID
		p.Nickname = nickname
		p.Role = r
		p.Connected = true
	} else {
		s.Participants = append(s.Participants, &Participant{
			SessionID:    sessionID,
			ConnectionID: connectionID,
			Nickname:     nickname,
			Role:         r,
			Connected:    true,
			JoinedAt:     nowMs(),
		})
	}

	s.electHost()
	s.ResolverSessionID = s.selectResolver()
	s.touch()
}

func (s *RoomState) markDisconnected(connectionID string) {
	p := s.findByConnection(connectionID)
	if p == nil {
		return
	}
	p.Connected = false
	p.ConnectionID = ""
	s.electHost()
	s.ResolverSessionID = s.selectResolver()
	s.touch()
}

// removeParticipant is the explicit leave, not a disconnect: the record and
// any pending submission are gone for good.
func (s *RoomState) removeParticipant(sessionID string) {
	kept := s.Participants[:0]
	removed := false
	for _, p := range s.Participants {
		if p.SessionID == sessionID {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	if !removed {
		return
	}
	s.Participants = kept

	submissions := s.Submissions[:0]
	for _, sub := range s.Submissions {
		if sub.PlayerID == sessionID {
			continue
		}
		submissions = append(submissions, sub)
	}
	s.Submissions = submissions

	if s.HostSessionID == sessionID {
		s.HostSessionID = ""
	}
	s.electHost()
	s.ResolverSessionID = s.selectResolver()
	s.touch()
}

// resetToLobby replaces everything but the roster and room config in place,
// preserving object identity for external holders of the reference.
func (s *RoomState) resetToLobby() {
	s.Phase = phaseLobby
	s.GameTopic = ""
	s.RoundIndex = 0
	s.CreatedAt = nowMs()
	s.PhaseEndsAt = 0
	s.RoundStartedAt = 0
	s.CurrentTarget = ""
	s.CurrentRoundID = ""
	s.Submissions = []RoundSubmission{}
	s.LastRoundResults = nil
	s.RoundHistory = []RoundSnapshot{}
	s.HostSessionID = ""
	s.electHost()
	s.ResolverSessionID = s.selectResolver()
	s.touch()
}

func (s *RoomState) resetGame() {
	for _, p := range s.Participants {
		p.Score = 0
		p.SubmittedPrompt = false
	}
	s.resetToLobby()
}

func (s *RoomState) clearRoomParticipants() {
	s.Participants = []*Participant{}
	s.resetToLobby()
}

func (s *RoomState) setGameTopic(topic string) error {
	if s.Phase != phaseLobby {
		return errTopicLocked
	}
	s.GameTopic = trimToMax(topic, maxTextLength)
	s.touch()
	return nil
}

// startGame freezes the topic and begins round 1 with the caller-supplied
// target. Target text is never generated here; it arrives from the host.
func (s *RoomState) startGame(initialTarget string) {
	for _, p := range s.Participants {
		if p.Role == rolePlayer {
			p.Score = 0
		}
	}
	s.GameTopic = trimToMax(s.GameTopic, maxTextLength)
	s.RoundHistory = []RoundSnapshot{}
	s.LastRoundResults = nil
	s.RoundIndex = 1
	s.beginRound(initialTarget)
}

func (s *RoomState) beginRound(target string) {
	s.Phase = phasePrompting
	s.CurrentTarget = trimToMax(target, maxTextLength)
	s.CurrentRoundID = newRoundID()
	s.Submissions = []RoundSubmission{}
	s.LastRoundResults = nil
	s.RoundStartedAt = nowMs()
	s.PhaseEndsAt = nowMs() + int64(s.PromptSeconds)*1000
	for _, p := range s.Participants {
		if p.Role == rolePlayer {
			p.SubmittedPrompt = false
		}
	}
	s.ResolverSessionID = s.selectResolver()
	s.touch()
}

func (s *RoomState) submitPrompt(sessionID, prompt string) error {
	if s.Phase != phasePrompting || s.CurrentRoundID == "" {
		return errRoundNotAcceptingSubmissions
	}
	p := s.findParticipant(sessionID)
	if p == nil || p.Role != rolePlayer {
		return errNotAPlayer
	}
	trimmed := trimToMax(prompt, maxTextLength)
	if trimmed == "" {
		return errEmptyPrompt
	}

	updated := false
	for i := range s.Submissions {
		if s.Submissions[i].PlayerID == sessionID {
			s.Submissions[i].Prompt = trimmed
			s.Submissions[i].SubmittedAt = nowMs()
			updated = true
			break
		}
	}
	if !updated {
		s.Submissions = append(s.Submissions, RoundSubmission{
			PlayerID:    sessionID,
			Prompt:      trimmed,
			SubmittedAt: nowMs(),
		})
	}

	p.SubmittedPrompt = true
	s.touch()
	return nil
}

// maybeAdvanceFromPrompting moves to resolving once everyone connected has
// submitted or the deadline has lapsed. Idempotent; safe to call on every
// inbound message.
func (s *RoomState) maybeAdvanceFromPrompting() bool {
	if s.Phase != phasePrompting {
		return false
	}
	expired := s.PhaseEndsAt != 0 && s.PhaseEndsAt <= nowMs()
	if !expired && len(s.Submissions) < len(s.connectedPlayers()) {
		return false
	}

	s.Phase = phaseResolving
	s.PhaseEndsAt = 0
	s.ResolverSessionID = s.selectResolver()
	s.touch()
	return true
}

func (s *RoomState) applyRoundResults(roundID string, results []ScoredSubmission) error {
	if s.Phase != phaseResolving {
		return errNotResolving
	}
	if s.CurrentRoundID != roundID {
		return errRoundMismatch
	}

	s.LastRoundResults = append([]ScoredSubmission(nil), results...)
	for _, result := range results {
		if p := s.findParticipant(result.PlayerID); p != nil && p.Role == rolePlayer {
			p.Score += result.ScoreDelta
		}
	}

	s.RoundHistory = append(s.RoundHistory, RoundSnapshot{
		RoundIndex:  s.RoundIndex,
		RoundID:     roundID,
		Target:      s.CurrentTarget,
		StartedAt:   s.RoundStartedAt,
		EndsAt:      nowMs(),
		Submissions: append([]RoundSubmission(nil), s.Submissions...),
		Results:     append([]ScoredSubmission(nil), results...),
	})

	if s.RoundIndex >= s.TotalRounds {
		s.Phase = phaseGameComplete
		s.PhaseEndsAt = 0
		s.RoundStartedAt = 0
	} else {
		s.Phase = phaseRoundComplete
		s.PhaseEndsAt = nowMs() + int64(s.IntermissionSeconds)*1000
	}
	s.touch()
	return nil
}

// maybeAdvancePostResults starts the next round once the intermission has
// run out. The target may be empty when no host supplied one; the round
// degrades rather than blocks.
func (s *RoomState) maybeAdvancePostResults(nextTarget string) bool {
	if s.Phase != phaseRoundComplete {
		return false
	}
	if s.PhaseEndsAt == 0 || s.PhaseEndsAt > nowMs() {
		return false
	}
	s.RoundIndex++
	s.beginRound(nextTarget)
	return true
}

func (s *RoomState) usedTargets() []string {
	targets := make([]string, 0, len(s.RoundHistory))
	for _, snapshot := range s.RoundHistory {
		targets = append(targets, snapshot.Target)
	}
	return targets
}
