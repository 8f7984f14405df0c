package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		totalRounds:   10,
		maxPlayers:    12,
		promptTimeout: 60 * time.Second,
		intermission:  8 * time.Second,
	}
}

func testState() *RoomState {
	return newRoomState("ABCD", testConfig())
}

func TestNewRoomState_Defaults(t *testing.T) {
	s := testState()

	assert.Equal(t, "ABCD", s.RoomCode)
	assert.Equal(t, phaseLobby, s.Phase)
	assert.Equal(t, 10, s.TotalRounds)
	assert.Equal(t, 12, s.MaxPlayers)
	assert.Equal(t, 60, s.PromptSeconds)
	assert.Equal(t, 8, s.IntermissionSeconds)
	assert.Empty(t, s.Participants)
	assert.NotZero(t, s.CreatedAt)
}

func TestUpsertParticipant_FirstPlayerBecomesHostAndResolver(t *testing.T) {
	s := testState()

	s.upsertParticipant("s1", "c1", "alice", rolePlayer)

	assert.Equal(t, "s1", s.HostSessionID)
	assert.Equal(t, "s1", s.ResolverSessionID)
	require.Len(t, s.Participants, 1)
	assert.Equal(t, statusInLobby, s.Participants[0].RoundStatus)
}

func TestUpsertParticipant_GuestNeverHosts(t *testing.T) {
	s := testState()

	s.upsertParticipant("g1", "c1", "watcher", roleGuest)

	assert.Empty(t, s.HostSessionID)
	assert.Empty(t, s.ResolverSessionID)
}

func TestUpsertParticipant_SameSessionIsIdempotent(t *testing.T) {
	s := testState()

	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s1", "c2", "alice", rolePlayer)

	require.Len(t, s.Participants, 1)
	assert.Equal(t, "c2", s.Participants[0].ConnectionID)
}

func TestIsNicknameTaken_IgnoresDisconnected(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)

	assert.True(t, s.isNicknameTaken("ALICE", "s2", true))

	s.markDisconnected("c1")

	assert.False(t, s.isNicknameTaken("alice", "s2", true))
}

func TestReconnect_MergesByNicknameAndSweepsIDs(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this landmark?"))
	s.findParticipant("s1").Score = 40

	s.markDisconnected("c1")
	s.upsertParticipant("s9", "c9", "alice", rolePlayer)

	require.Len(t, s.Participants, 2)
	merged := s.findParticipant("s9")
	require.NotNil(t, merged)
	assert.Equal(t, 40, merged.Score)
	assert.True(t, merged.Connected)
	assert.Nil(t, s.findParticipant("s1"))

	// The host seat moved to bob the moment alice dropped, and stays.
	assert.Equal(t, "s2", s.HostSessionID)
	require.Len(t, s.Submissions, 1)
	assert.Equal(t, "s9", s.Submissions[0].PlayerID)
}

func TestRebindSession_SweepsEveryReference(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who designed this landmark?"))
	require.True(t, s.maybeAdvanceFromPrompting())
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID,
		[]ScoredSubmission{{PlayerID: "s1", ScoreDelta: 40}}))
	require.Equal(t, 40, s.findParticipant("s1").Score)

	s.markDisconnected("c1")
	s.upsertParticipant("s9", "c9", "alice", rolePlayer)

	assert.Equal(t, 40, s.findParticipant("s9").Score)
	assert.Equal(t, "s9", s.HostSessionID)
	assert.Equal(t, "s9", s.ResolverSessionID)
	assert.Equal(t, "s9", s.LastRoundResults[0].PlayerID)
	assert.Equal(t, "s9", s.RoundHistory[0].Submissions[0].PlayerID)
	assert.Equal(t, "s9", s.RoundHistory[0].Results[0].PlayerID)
}

func TestElectHost_LonePlayerTakesSeatFromDisconnectedHost(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	require.Equal(t, "s1", s.HostSessionID)

	s.markDisconnected("c1")

	assert.Equal(t, "s2", s.HostSessionID)
}

func TestElectHost_DisconnectedHostKeepsSeatWithMultipleSurvivors(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.upsertParticipant("s3", "c3", "carol", rolePlayer)

	s.markDisconnected("c1")

	assert.Equal(t, "s1", s.HostSessionID)
}

func TestRemoveParticipant_ReassignsHostAndStripsSubmission(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who designed this landmark?"))

	s.removeParticipant("s1")

	assert.Nil(t, s.findParticipant("s1"))
	assert.Equal(t, "s2", s.HostSessionID)
	assert.Empty(t, s.Submissions)
}

func TestSetGameTopic_LockedOutsideLobby(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)

	require.NoError(t, s.setGameTopic("landmarks"))
	assert.Equal(t, "landmarks", s.GameTopic)

	s.startGame("Eiffel Tower")

	assert.ErrorIs(t, s.setGameTopic("art"), errTopicLocked)
	assert.Equal(t, "landmarks", s.GameTopic)
}

func TestStartGame_BeginsRoundOne(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.findParticipant("s1").Score = 99

	s.startGame("Eiffel Tower")

	assert.Equal(t, phasePrompting, s.Phase)
	assert.Equal(t, 1, s.RoundIndex)
	assert.Equal(t, "Eiffel Tower", s.CurrentTarget)
	assert.NotEmpty(t, s.CurrentRoundID)
	assert.NotZero(t, s.PhaseEndsAt)
	assert.Equal(t, 0, s.findParticipant("s1").Score)
	assert.Equal(t, statusEnteringPrompt, s.findParticipant("s1").RoundStatus)
}

func TestSubmitPrompt_OverwritesPriorSubmission(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.startGame("Eiffel Tower")

	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.NoError(t, s.submitPrompt("s1", "What landmark is in Paris?"))

	require.Len(t, s.Submissions, 1)
	assert.Equal(t, "What landmark is in Paris?", s.Submissions[0].Prompt)
	assert.Equal(t, statusWaiting, s.findParticipant("s1").RoundStatus)
}

func TestSubmitPrompt_Errors(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("g1", "c9", "watcher", roleGuest)

	assert.ErrorIs(t, s.submitPrompt("s1", "Who?"), errRoundNotAcceptingSubmissions)

	s.startGame("Eiffel Tower")

	assert.ErrorIs(t, s.submitPrompt("g1", "Who?"), errNotAPlayer)
	assert.ErrorIs(t, s.submitPrompt("nobody", "Who?"), errNotAPlayer)
	assert.ErrorIs(t, s.submitPrompt("s1", "   "), errEmptyPrompt)
}

func TestMaybeAdvanceFromPrompting_AllSubmitted(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.upsertParticipant("s3", "c3", "carol", rolePlayer)
	s.startGame("Eiffel Tower")

	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.NoError(t, s.submitPrompt("s2", "What tower is this?"))
	assert.False(t, s.maybeAdvanceFromPrompting())
	assert.Equal(t, phasePrompting, s.Phase)

	require.NoError(t, s.submitPrompt("s3", "Where is it?"))
	assert.True(t, s.maybeAdvanceFromPrompting())
	assert.Equal(t, phaseResolving, s.Phase)
	assert.Zero(t, s.PhaseEndsAt)
}

func TestMaybeAdvanceFromPrompting_DeadlineForcesPartialRound(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))

	s.PhaseEndsAt = nowMs() - 1

	assert.True(t, s.maybeAdvanceFromPrompting())
	assert.Equal(t, phaseResolving, s.Phase)
	assert.Len(t, s.Submissions, 1)
}

func TestApplyRoundResults_ScoresAndSnapshots(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.NoError(t, s.submitPrompt("s2", "What tower is this?"))
	require.True(t, s.maybeAdvanceFromPrompting())

	results := []ScoredSubmission{
		{PlayerID: "s1", Prompt: "Who built this?", Answer: "Eiffel Tower", ExactMatch: true, ScoreDelta: 100},
		{PlayerID: "s2", Prompt: "What tower is this?", Answer: "Blackpool Tower", ScoreDelta: 40},
	}
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID, results))

	assert.Equal(t, phaseRoundComplete, s.Phase)
	assert.NotZero(t, s.PhaseEndsAt)
	assert.Equal(t, 100, s.findParticipant("s1").Score)
	assert.Equal(t, 40, s.findParticipant("s2").Score)
	require.Len(t, s.RoundHistory, 1)
	assert.Equal(t, "Eiffel Tower", s.RoundHistory[0].Target)
	assert.Len(t, s.RoundHistory[0].Submissions, 2)
}

func TestApplyRoundResults_HistoryIsCopiedNotAliased(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())

	results := []ScoredSubmission{{PlayerID: "s1", Answer: "x", ScoreDelta: 10}}
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID, results))

	results[0].ScoreDelta = 9999
	s.Submissions[0].Prompt = "mutated"

	assert.Equal(t, 10, s.RoundHistory[0].Results[0].ScoreDelta)
	assert.Equal(t, "Who built this?", s.RoundHistory[0].Submissions[0].Prompt)
	assert.Equal(t, 10, s.LastRoundResults[0].ScoreDelta)
}

func TestApplyRoundResults_LateDuplicateIsRejected(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())

	roundID := s.CurrentRoundID
	results := []ScoredSubmission{{PlayerID: "s1", ScoreDelta: 25}}
	require.NoError(t, s.applyRoundResults(roundID, results))

	err := s.applyRoundResults(roundID, results)

	assert.ErrorIs(t, err, errNotResolving)
	assert.Equal(t, 25, s.findParticipant("s1").Score)
	assert.Len(t, s.RoundHistory, 1)
}

func TestApplyRoundResults_RoundMismatch(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())

	err := s.applyRoundResults("stale-round", nil)

	assert.ErrorIs(t, err, errRoundMismatch)
	assert.Equal(t, phaseResolving, s.Phase)
}

func TestApplyRoundResults_FinalRoundCompletesGame(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.TotalRounds = 1
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())

	require.NoError(t, s.applyRoundResults(s.CurrentRoundID, nil))

	assert.Equal(t, phaseGameComplete, s.Phase)
	assert.Zero(t, s.PhaseEndsAt)
	assert.False(t, s.maybeAdvancePostResults("Mona Lisa"))
}

func TestMaybeAdvancePostResults_GatedOnDeadline(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID, nil))

	assert.False(t, s.maybeAdvancePostResults("Mona Lisa"))
	assert.Equal(t, phaseRoundComplete, s.Phase)

	s.PhaseEndsAt = nowMs() - 1

	assert.True(t, s.maybeAdvancePostResults("Mona Lisa"))
	assert.Equal(t, phasePrompting, s.Phase)
	assert.Equal(t, 2, s.RoundIndex)
	assert.Equal(t, "Mona Lisa", s.CurrentTarget)
	assert.Empty(t, s.Submissions)
}

func TestMaybeAdvancePostResults_EmptyTargetStillAdvances(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID, nil))
	s.PhaseEndsAt = nowMs() - 1

	assert.True(t, s.maybeAdvancePostResults(""))
	assert.Equal(t, phasePrompting, s.Phase)
	assert.Empty(t, s.CurrentTarget)
}

func TestDeriveRoundStatus(t *testing.T) {
	s := testState()
	player := &Participant{Role: rolePlayer, Connected: true}
	guest := &Participant{Role: roleGuest, Connected: true}
	offline := &Participant{Role: rolePlayer}

	cases := []struct {
		phase     roomPhase
		submitted bool
		player    roundStatus
		guest     roundStatus
	}{
		{phaseLobby, false, statusInLobby, statusInLobby},
		{phasePrompting, false, statusEnteringPrompt, statusWaiting},
		{phasePrompting, true, statusWaiting, statusWaiting},
		{phaseResolving, false, statusWaiting, statusWaiting},
		{phaseRoundComplete, false, statusRoundComplete, statusRoundComplete},
		{phaseGameComplete, false, statusRoundComplete, statusRoundComplete},
	}
	for _, tc := range cases {
		s.Phase = tc.phase
		player.SubmittedPrompt = tc.submitted

		assert.Equal(t, tc.player, s.deriveRoundStatus(player), "player in %s", tc.phase)
		assert.Equal(t, tc.guest, s.deriveRoundStatus(guest), "guest in %s", tc.phase)
		assert.Equal(t, statusOffline, s.deriveRoundStatus(offline), "offline in %s", tc.phase)
	}
}

func TestResetGame_ZeroesScoresAndReturnsToLobby(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.NoError(t, s.submitPrompt("s2", "What tower is this?"))
	require.True(t, s.maybeAdvanceFromPrompting())
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID,
		[]ScoredSubmission{{PlayerID: "s1", ScoreDelta: 50}}))

	s.resetGame()

	assert.Equal(t, phaseLobby, s.Phase)
	assert.Zero(t, s.RoundIndex)
	assert.Empty(t, s.GameTopic)
	assert.Empty(t, s.RoundHistory)
	assert.Equal(t, 0, s.findParticipant("s1").Score)
	require.Len(t, s.Participants, 2)
	assert.Equal(t, "s1", s.HostSessionID)
}

func TestClearRoomParticipants(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.upsertParticipant("s2", "c2", "bob", rolePlayer)

	s.clearRoomParticipants()

	assert.Empty(t, s.Participants)
	assert.Empty(t, s.HostSessionID)
	assert.Equal(t, phaseLobby, s.Phase)
}

func TestUsedTargets(t *testing.T) {
	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who built this?"))
	require.True(t, s.maybeAdvanceFromPrompting())
	require.NoError(t, s.applyRoundResults(s.CurrentRoundID, nil))
	s.PhaseEndsAt = nowMs() - 1
	require.True(t, s.maybeAdvancePostResults("Mona Lisa"))

	assert.Equal(t, []string{"Eiffel Tower"}, s.usedTargets())
}
