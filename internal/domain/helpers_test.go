package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// newGameWithRoles builds a started game where player pN holds roles[N].
// p0 is the admin. The game is left in NIGHT of turn 1.
func newGameWithRoles(t *testing.T, roles ...RoleType) *Game {
	t.Helper()

	g := NewGame("room1", DefaultSettings())
	dist := make(map[RoleType]int)
	for i, role := range roles {
		_, err := g.AddPlayer(fmt.Sprintf("p%d", i), fmt.Sprintf("Player %d", i))
		require.NoError(t, err)
		dist[role]++
	}
	g.Settings.RoleDistribution = dist
	for i, role := range roles {
		g.Players[fmt.Sprintf("p%d", i)].Role = role
	}
	g.TurnCount = 1
	g.TransitionTo(PhaseNight)
	return g
}

func act(t *testing.T, g *Game, playerID string, typ ActionType, target string) bool {
	t.Helper()
	advanced, err := g.SubmitAction(playerID, Action{Type: typ, TargetID: target, Confirmed: true})
	require.NoError(t, err)
	return advanced
}

func vote(t *testing.T, g *Game, playerID, target string) bool {
	t.Helper()
	advanced, err := g.SubmitVote(playerID, target)
	require.NoError(t, err)
	return advanced
}

func noShuffle(int, func(i, j int)) {}
