package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	redisrepo "github.com/dom/werewolf/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingBroadcaster struct {
	mu    sync.Mutex
	games []*domain.Game
	err   error
	// onBroadcast, when set, runs before the game is recorded.
	onBroadcast func(game *domain.Game)
}

func (b *recordingBroadcaster) BroadcastGame(_ context.Context, game *domain.Game) error {
	if b.onBroadcast != nil {
		b.onBroadcast(game)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.games = append(b.games, game)
	return b.err
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.games)
}

func (b *recordingBroadcaster) last() *domain.Game {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.games[len(b.games)-1]
}

type fixture struct {
	svc         *GameService
	repos       *repository.Repositories
	broadcaster *recordingBroadcaster
	mr          *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := redisrepo.NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	opts := repository.DefaultOptions()
	opts.LockWait = 200 * time.Millisecond
	repos := redisrepo.NewRepositories(rdb, opts, zap.NewNop())

	b := &recordingBroadcaster{}
	svc := NewGameService(repos, b, domain.DefaultSettings(), zap.NewNop())
	// Keep the catalogue order so role assignment is predictable.
	svc.shuffle = func(n int, swap func(i, j int)) {}

	return &fixture{svc: svc, repos: repos, broadcaster: b, mr: mr}
}

// room creates a room and joins the nicknames in order, returning their ids.
func (f *fixture) room(t *testing.T, nicknames ...string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	view, err := f.svc.CreateRoom(ctx, nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(nicknames))
	for _, name := range nicknames {
		res, err := f.svc.JoinRoom(ctx, view.RoomID, name, "")
		require.NoError(t, err)
		ids = append(ids, res.PlayerID)
	}
	return view.RoomID, ids
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("DefaultSettings", func(t *testing.T) {
		view, err := f.svc.CreateRoom(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, view.RoomID, roomIDLength)
		assert.Equal(t, domain.PhaseWaiting, view.Phase)
		assert.Equal(t, domain.DefaultSettings().RoleDistribution, view.Settings.RoleDistribution)

		exists, err := f.svc.RoomExists(ctx, view.RoomID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("InvalidSettingsRejected", func(t *testing.T) {
		s := domain.DefaultSettings()
		s.PhaseDurationSeconds = -5
		_, err := f.svc.CreateRoom(ctx, &s)
		assert.ErrorIs(t, err, domain.ErrInvalidSettings)
	})

	t.Run("RetriesTakenIDs", func(t *testing.T) {
		taken, err := f.svc.CreateRoom(ctx, nil)
		require.NoError(t, err)

		ids := []string{taken.RoomID, "fresh123"}
		orig := f.svc.newRoomID
		defer func() { f.svc.newRoomID = orig }()
		f.svc.newRoomID = func() (string, error) {
			id := ids[0]
			ids = ids[1:]
			return id, nil
		}

		view, err := f.svc.CreateRoom(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "fresh123", view.RoomID)
	})

	t.Run("GivesUpAfterAttempts", func(t *testing.T) {
		taken, err := f.svc.CreateRoom(ctx, nil)
		require.NoError(t, err)

		orig := f.svc.newRoomID
		defer func() { f.svc.newRoomID = orig }()
		f.svc.newRoomID = func() (string, error) { return taken.RoomID, nil }

		_, err = f.svc.CreateRoom(ctx, nil)
		assert.Error(t, err)
	})
}

func TestJoinRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice")
	before := f.broadcaster.count()

	t.Run("Rejoin", func(t *testing.T) {
		res, err := f.svc.JoinRoom(ctx, roomID, "whatever", ids[0])
		require.NoError(t, err)
		assert.Equal(t, ids[0], res.PlayerID)
		assert.Equal(t, ids[0], res.View.ViewerID)
		assert.Equal(t, before, f.broadcaster.count(), "rejoin does not broadcast")
	})

	t.Run("ClientSuppliedID", func(t *testing.T) {
		res, err := f.svc.JoinRoom(ctx, roomID, "Bob", "bob-id")
		require.NoError(t, err)
		assert.Equal(t, "bob-id", res.PlayerID)
		assert.False(t, res.View.Players["bob-id"].IsAdmin)
		assert.Equal(t, before+1, f.broadcaster.count())
	})

	t.Run("DuplicateNickname", func(t *testing.T) {
		_, err := f.svc.JoinRoom(ctx, roomID, "ALICE", "")
		assert.ErrorIs(t, err, domain.ErrNicknameTaken)
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		_, err := f.svc.JoinRoom(ctx, "missing", "Zed", "")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestMutationPersistsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob", "Carol", "Dave")

	view, err := f.svc.StartGame(ctx, roomID, ids[0], StartInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNight, view.Phase)
	assert.Equal(t, ids[0], view.ViewerID)

	stored, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseNight, stored.Phase)
	assert.Equal(t, domain.PhaseNight, f.broadcaster.last().Phase)

	// Catalogue order with W1 S1 D1 V1: VILLAGER, WEREWOLF, SEER, DOCTOR.
	assert.Equal(t, domain.RoleVillager, stored.Players[ids[0]].Role)
	assert.Equal(t, domain.RoleWerewolf, stored.Players[ids[1]].Role)
	assert.Equal(t, domain.RoleSeer, stored.Players[ids[2]].Role)
	assert.Equal(t, domain.RoleDoctor, stored.Players[ids[3]].Role)
}

func TestRejectedMutationLeavesStateAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob")
	before := f.broadcaster.count()

	_, err := f.svc.StartGame(ctx, roomID, ids[1], StartInput{})
	assert.ErrorIs(t, err, domain.ErrNotAdmin)

	_, err = f.svc.StartGame(ctx, roomID, ids[0], StartInput{})
	assert.ErrorIs(t, err, domain.ErrRoleCountMismatch)

	stored, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseWaiting, stored.Phase)
	for _, p := range stored.Players {
		assert.Empty(t, p.Role)
	}
	assert.Equal(t, before, f.broadcaster.count())
}

func TestStartWithAutoBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob", "Carol", "Dave", "Erin")

	_, err := f.svc.StartGame(ctx, roomID, ids[0], StartInput{AutoBalance: true})
	require.NoError(t, err)

	stored, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.AutoBalanceRoles(5), stored.Settings.RoleDistribution)
}

func TestNightAndDayRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob", "Carol", "Dave")
	villager, wolf, seer, doctor := ids[0], ids[1], ids[2], ids[3]

	_, err := f.svc.StartGame(ctx, roomID, villager, StartInput{})
	require.NoError(t, err)

	_, err = f.svc.SubmitAction(ctx, roomID, wolf, domain.Action{Type: domain.ActionKill, TargetID: villager, Confirmed: true})
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, roomID, seer, domain.Action{Type: domain.ActionCheck, TargetID: wolf, Confirmed: true})
	require.NoError(t, err)
	view, err := f.svc.SubmitAction(ctx, roomID, doctor, domain.Action{Type: domain.ActionSave, TargetID: seer, Confirmed: true})
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDay, view.Phase)
	assert.False(t, view.Players[villager].IsAlive)
	assert.Equal(t, 2, view.TurnCount)

	_, err = f.svc.SubmitVote(ctx, roomID, villager, wolf)
	assert.ErrorIs(t, err, domain.ErrPlayerDead)

	for _, voter := range []string{seer, doctor} {
		_, err = f.svc.SubmitVote(ctx, roomID, voter, wolf)
		require.NoError(t, err)
	}
	view, err = f.svc.SubmitVote(ctx, roomID, wolf, seer)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseGameOver, view.Phase)
	assert.Equal(t, domain.WinnerVillagers, view.Winners)
}

func TestEndAndRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob", "Carol", "Dave")

	_, err := f.svc.StartGame(ctx, roomID, ids[0], StartInput{})
	require.NoError(t, err)

	view, err := f.svc.EndGame(ctx, roomID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerCancelled, view.Winners)

	_, err = f.svc.EndGame(ctx, roomID, ids[0])
	assert.ErrorIs(t, err, domain.ErrGameOver)

	view, err = f.svc.RestartGame(ctx, roomID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseWaiting, view.Phase)
	assert.Empty(t, view.Winners)
}

func TestKickAndLeaveClearPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob", "Carol")

	for _, id := range ids {
		require.NoError(t, f.repos.Presence.Touch(ctx, roomID, id, "node-a"))
	}

	view, err := f.svc.KickPlayer(ctx, roomID, ids[0], ids[1])
	require.NoError(t, err)
	assert.NotContains(t, view.Players, ids[1])
	online, err := f.repos.Presence.IsOnline(ctx, roomID, ids[1])
	require.NoError(t, err)
	assert.False(t, online)

	view, err = f.svc.LeaveRoom(ctx, roomID, ids[0])
	require.NoError(t, err)
	assert.True(t, view.Players[ids[2]].IsAdmin, "remaining joiner becomes admin")
	assert.True(t, view.Players[ids[2]].IsOnline)
	online, err = f.repos.Presence.IsOnline(ctx, roomID, ids[0])
	require.NoError(t, err)
	assert.False(t, online)
}

func TestLockTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice")

	held, err := f.repos.Locks.Acquire(ctx, roomID)
	require.NoError(t, err)
	defer held.Release(ctx)

	_, err = f.svc.AutoBalance(ctx, roomID, ids[0])
	assert.ErrorIs(t, err, repository.ErrLockTimeout)
}

func TestBroadcastHappensUnderRoomLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, _ := f.room(t, "Alice")

	var lockErrs []error
	f.broadcaster.onBroadcast = func(game *domain.Game) {
		l, err := f.repos.Locks.Acquire(ctx, game.RoomID)
		if err == nil {
			l.Release(ctx)
		}
		lockErrs = append(lockErrs, err)
	}

	_, err := f.svc.JoinRoom(ctx, roomID, "Bob", "")
	require.NoError(t, err)
	require.Len(t, lockErrs, 1)
	assert.ErrorIs(t, lockErrs[0], repository.ErrLockTimeout)

	// The lock is free again once the mutation returned.
	l, err := f.repos.Locks.Acquire(ctx, roomID)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
}

func TestSavedMutationsBumpVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, ids := f.room(t, "Alice", "Bob")

	before, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)

	_, err = f.svc.JoinRoom(ctx, roomID, "Carol", "")
	require.NoError(t, err)
	after, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)
	assert.Equal(t, after.Version, f.broadcaster.last().Version)

	// A rejected mutation saves nothing.
	_, err = f.svc.StartGame(ctx, roomID, ids[1], StartInput{})
	require.Error(t, err)
	unchanged, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, after.Version, unchanged.Version)
}

func TestBroadcastFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, _ := f.room(t, "Alice")
	f.broadcaster.err = errors.New("bus down")

	res, err := f.svc.JoinRoom(ctx, roomID, "Bob", "")
	require.NoError(t, err)

	stored, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Contains(t, stored.Players, res.PlayerID)
}

func TestConcurrentJoinsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID, _ := f.room(t)

	const players = 8
	var wg sync.WaitGroup
	errs := make(chan error, players)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.JoinRoom(ctx, roomID, string(rune('A'+i))+"-player", "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	joined := 0
	for err := range errs {
		if err == nil {
			joined++
		} else {
			assert.ErrorIs(t, err, repository.ErrLockTimeout)
		}
	}

	stored, err := f.svc.GetGame(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, stored.Players, joined, "no join was lost to a concurrent write")
}
