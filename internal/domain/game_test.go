package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLobby(t *testing.T, nicknames ...string) *Game {
	t.Helper()
	g := NewGame("room1", DefaultSettings())
	for i, name := range nicknames {
		_, err := g.AddPlayer(string(rune('a'+i)), name)
		require.NoError(t, err)
	}
	return g
}

func TestAddPlayer(t *testing.T) {
	t.Run("FirstJoinerIsAdmin", func(t *testing.T) {
		g := newLobby(t, "Alice", "Bob")
		assert.True(t, g.Players["a"].IsAdmin)
		assert.False(t, g.Players["b"].IsAdmin)
		assert.Equal(t, 0, g.Players["a"].JoinSeq)
		assert.Equal(t, 1, g.Players["b"].JoinSeq)
		assert.Equal(t, "a", g.Admin().ID)
	})

	t.Run("DuplicateNicknameIgnoresCase", func(t *testing.T) {
		g := newLobby(t, "Alice")
		_, err := g.AddPlayer("x", "alice")
		assert.ErrorIs(t, err, ErrNicknameTaken)
		assert.Len(t, g.Players, 1)
	})

	t.Run("NicknameLength", func(t *testing.T) {
		g := newLobby(t)
		_, err := g.AddPlayer("x", "   ")
		assert.ErrorIs(t, err, ErrNicknameInvalid)
		_, err = g.AddPlayer("x", "abcdefghijklmnopqrstuvwxyz0123456")
		assert.ErrorIs(t, err, ErrNicknameInvalid)
	})

	t.Run("LateJoinerIsSpectator", func(t *testing.T) {
		g := newGameWithRoles(t, RoleWerewolf, RoleVillager, RoleVillager)
		p, err := g.AddPlayer("late", "Late")
		require.NoError(t, err)
		assert.Equal(t, RoleSpectator, p.Role)
		assert.True(t, p.IsAlive)
		assert.False(t, p.IsAdmin)

		_, err = g.SubmitVote("late", "p0")
		assert.ErrorIs(t, err, ErrWrongPhase)
		g.TransitionTo(PhaseDay)
		_, err = g.SubmitVote("late", "p0")
		assert.ErrorIs(t, err, ErrCannotVote)
	})
}

func TestStart(t *testing.T) {
	t.Run("AssignsRolesAndEntersNight", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C", "D")
		require.NoError(t, g.Start("a", StartOptions{Shuffle: noShuffle}))

		assert.Equal(t, PhaseNight, g.Phase)
		assert.Equal(t, 1, g.TurnCount)
		counts := make(map[RoleType]int)
		for _, p := range g.Players {
			counts[p.Role]++
		}
		assert.Equal(t, map[RoleType]int{RoleVillager: 1, RoleWerewolf: 1, RoleSeer: 1, RoleDoctor: 1}, counts)
		// Catalogue order with no shuffle.
		assert.Equal(t, RoleVillager, g.Players["a"].Role)
		assert.Equal(t, RoleWerewolf, g.Players["b"].Role)
	})

	t.Run("RoleCountMismatchLeavesGameUntouched", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C")
		before, err := json.Marshal(g)
		require.NoError(t, err)

		err = g.Start("a", StartOptions{})
		assert.ErrorIs(t, err, ErrRoleCountMismatch)
		assert.ErrorIs(t, err, ErrInvalidSettings)

		after, err := json.Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, string(before), string(after))
	})

	t.Run("OnlyAdmin", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C", "D")
		assert.ErrorIs(t, g.Start("b", StartOptions{}), ErrNotAdmin)
		assert.Equal(t, PhaseWaiting, g.Phase)
	})

	t.Run("SettingsOverride", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C")
		override := DefaultSettings()
		override.RoleDistribution = map[RoleType]int{RoleWerewolf: 1, RoleVillager: 2}
		override.RevealRoleOnDeath = true

		require.NoError(t, g.Start("a", StartOptions{Settings: &override, Shuffle: noShuffle}))
		assert.True(t, g.Settings.RevealRoleOnDeath)
		assert.Equal(t, 3, g.Settings.TotalRoles())
	})

	t.Run("AutoBalanceOption", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C", "D", "E")
		require.NoError(t, g.Start("a", StartOptions{AutoBalance: true}))
		assert.Equal(t, AutoBalanceRoles(5), g.Settings.RoleDistribution)
	})

	t.Run("NoWerewolvesEndsImmediately", func(t *testing.T) {
		g := newLobby(t, "A", "B")
		s := DefaultSettings()
		s.RoleDistribution = map[RoleType]int{RoleVillager: 2}
		require.NoError(t, g.UpdateSettings("a", s))

		require.NoError(t, g.Start("a", StartOptions{}))
		assert.Equal(t, PhaseGameOver, g.Phase)
		assert.Equal(t, WinnerVillagers, g.Winners)
	})

	t.Run("NotTwice", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C", "D")
		require.NoError(t, g.Start("a", StartOptions{}))
		assert.ErrorIs(t, g.Start("a", StartOptions{}), ErrWrongPhase)
	})
}

func TestUpdateSettings(t *testing.T) {
	g := newLobby(t, "A", "B")

	bad := DefaultSettings()
	bad.RoleDistribution[RoleWerewolf] = -1
	assert.ErrorIs(t, g.UpdateSettings("a", bad), ErrNegativeCount)

	bad = DefaultSettings()
	bad.RoleDistribution["DRAGON"] = 1
	assert.ErrorIs(t, g.UpdateSettings("a", bad), ErrUnknownRole)

	assert.ErrorIs(t, g.UpdateSettings("b", DefaultSettings()), ErrNotAdmin)

	good := DefaultSettings()
	good.TimerEnabled = true
	good.PhaseDurationSeconds = 90
	require.NoError(t, g.UpdateSettings("a", good))
	assert.True(t, g.Settings.TimerEnabled)
	assert.Equal(t, 90, g.Settings.PhaseDurationSeconds)

	require.NoError(t, g.AutoBalance("a"))
	assert.Equal(t, AutoBalanceRoles(2), g.Settings.RoleDistribution)
}

func TestKickAndLeave(t *testing.T) {
	t.Run("KickRules", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C")
		assert.ErrorIs(t, g.Kick("b", "c"), ErrNotAdmin)
		assert.ErrorIs(t, g.Kick("a", "a"), ErrKickSelf)
		assert.ErrorIs(t, g.Kick("a", "zzz"), ErrPlayerNotFound)

		require.NoError(t, g.Kick("a", "c"))
		assert.NotContains(t, g.Players, "c")
	})

	t.Run("KickDuringGame", func(t *testing.T) {
		g := newGameWithRoles(t, RoleWerewolf, RoleVillager, RoleVillager)
		assert.ErrorIs(t, g.Kick("p0", "p1"), ErrGameInProgress)
	})

	t.Run("AdminLeavingPromotesEarliestJoiner", func(t *testing.T) {
		g := newLobby(t, "A", "B", "C")
		require.NoError(t, g.Leave("a"))
		assert.True(t, g.Players["b"].IsAdmin)
		assert.False(t, g.Players["c"].IsAdmin)
	})

	t.Run("KickKeepsLovers", func(t *testing.T) {
		g := newGameWithRoles(t, RoleWerewolf, RoleVillager, RoleVillager)
		g.Lovers = []string{"p1", "p2"}
		require.NoError(t, g.End("p0"))
		require.NoError(t, g.Kick("p0", "p1"))
		assert.Equal(t, []string{"p1", "p2"}, g.Lovers)
	})
}

func TestEndAndRestart(t *testing.T) {
	g := newGameWithRoles(t, RoleWerewolf, RoleWitch, RoleVillager, RoleVillager)
	act(t, g, "p1", ActionHeal, "p2")
	g.Lovers = []string{"p2", "p3"}
	g.SeerReveals["p9"] = []string{"p2"}

	assert.ErrorIs(t, g.End("p1"), ErrNotAdmin)
	require.NoError(t, g.End("p0"))
	assert.Equal(t, PhaseGameOver, g.Phase)
	assert.Equal(t, WinnerCancelled, g.Winners)
	assert.ErrorIs(t, g.End("p0"), ErrGameOver)

	require.NoError(t, g.Restart("p0"))
	assert.Equal(t, PhaseWaiting, g.Phase)
	assert.Equal(t, 0, g.TurnCount)
	assert.Empty(t, g.Winners)
	assert.Empty(t, g.Lovers)
	assert.Empty(t, g.SeerReveals)
	assert.Len(t, g.Players, 4)
	for _, p := range g.Players {
		assert.True(t, p.IsAlive)
		assert.Empty(t, p.Role)
		assert.True(t, p.WitchHasHeal)
		assert.True(t, p.WitchHasPoison)
	}
}

func TestGameJSONRoundTrip(t *testing.T) {
	g := newGameWithRoles(t, RoleWerewolf, RoleWitch, RoleBodyguard, RoleHunter, RoleSeer, RoleVillager)
	g.PhaseStartTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	act(t, g, "p0", ActionKill, "p5")
	act(t, g, "p1", ActionPoison, "p4")
	act(t, g, "p3", ActionRevenge, "p0")
	act(t, g, "p4", ActionCheck, "p0")
	_, err := g.SubmitAction("p2", Action{Type: ActionSave, TargetID: "p5", Confirmed: false})
	require.NoError(t, err)
	g.Players["p2"].LastProtectedTarget = "p1"
	g.Players["p5"].IsAlive = false
	g.Lovers = []string{"p0", "p5"}
	g.VotedOutThisRound = "p5"
	g.Winners = WinnerLovers

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var decoded Game
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, g, &decoded)
}

func TestGameJSONDefaults(t *testing.T) {
	raw := `{
		"room_id": "r1",
		"players": {"a": {"id": "a", "nickname": "A", "extra": 1}},
		"unknown_field": true
	}`

	var g Game
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, PhaseWaiting, g.Phase)
	assert.Equal(t, DefaultSettings(), g.Settings)
	assert.NotNil(t, g.SeerReveals)

	p := g.Players["a"]
	require.NotNil(t, p)
	assert.True(t, p.IsAlive)
	assert.True(t, p.WitchHasHeal)
	assert.True(t, p.WitchHasPoison)
}
