package domain

import (
	"encoding/json"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Phase is a stage of the game state machine.
type Phase string

const (
	PhaseWaiting       Phase = "WAITING"
	PhaseNight         Phase = "NIGHT"
	PhaseDay           Phase = "DAY"
	PhaseHunterRevenge Phase = "HUNTER_REVENGE"
	PhaseGameOver      Phase = "GAME_OVER"
)

// Winner labels the side that won a finished game.
type Winner string

const (
	WinnerVillagers  Winner = "VILLAGERS"
	WinnerWerewolves Winner = "WEREWOLVES"
	WinnerLovers     Winner = "LOVERS"
	WinnerTanner     Winner = "TANNER"
	WinnerCancelled  Winner = "CANCELLED"
)

const maxNicknameLength = 32

// Now is the clock used for phase start times.
var Now = func() time.Time { return time.Now().UTC() }

// Game is the aggregate root for one room.
type Game struct {
	RoomID            string              `json:"room_id"`
	Phase             Phase               `json:"phase"`
	Players           map[string]*Player  `json:"players"`
	Settings          Settings            `json:"settings"`
	TurnCount         int                 `json:"turn_count"`
	Winners           Winner              `json:"winners,omitempty"`
	SeerReveals       map[string][]string `json:"seer_reveals"`
	Lovers            []string            `json:"lovers,omitempty"`
	VotedOutThisRound string              `json:"voted_out_this_round,omitempty"`
	PhaseStartTime    time.Time           `json:"phase_start_time"`
	NextJoinSeq       int                 `json:"next_join_seq"`
	// Version grows by one with every saved mutation.
	Version int64 `json:"version"`
}

// NewGame creates an empty game in WAITING.
func NewGame(roomID string, settings Settings) *Game {
	return &Game{
		RoomID:         roomID,
		Phase:          PhaseWaiting,
		Players:        make(map[string]*Player),
		Settings:       settings.Clone(),
		SeerReveals:    make(map[string][]string),
		PhaseStartTime: Now(),
	}
}

// UnmarshalJSON ignores unknown fields and defaults missing ones.
func (g *Game) UnmarshalJSON(data []byte) error {
	type alias Game
	a := alias{Phase: PhaseWaiting, Settings: DefaultSettings()}
	a.Settings.RoleDistribution = nil
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Settings.RoleDistribution == nil {
		a.Settings.RoleDistribution = DefaultSettings().RoleDistribution
	}
	if a.Players == nil {
		a.Players = make(map[string]*Player)
	}
	if a.SeerReveals == nil {
		a.SeerReveals = make(map[string][]string)
	}
	*g = Game(a)
	return nil
}

// OrderedPlayers returns the players in join order.
func (g *Game) OrderedPlayers() []*Player {
	out := make([]*Player, 0, len(g.Players))
	for _, p := range g.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinSeq != out[j].JoinSeq {
			return out[i].JoinSeq < out[j].JoinSeq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Admin returns the current admin, or nil when the room is empty.
func (g *Game) Admin() *Player {
	for _, p := range g.OrderedPlayers() {
		if p.IsAdmin {
			return p
		}
	}
	return nil
}

func (g *Game) requireAdmin(playerID string) error {
	p, ok := g.Players[playerID]
	if !ok || !p.IsAdmin {
		return ErrNotAdmin
	}
	return nil
}

// AddPlayer joins a new player. The first joiner becomes admin; anyone joining
// after WAITING becomes a spectator.
func (g *Game) AddPlayer(id, nickname string) (*Player, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return nil, ErrNicknameInvalid
	}
	if _, exists := g.Players[id]; exists {
		return nil, Invalidf("player %s already joined", id)
	}
	for _, p := range g.Players {
		if strings.EqualFold(p.Nickname, nickname) {
			return nil, ErrNicknameTaken
		}
	}

	p := newPlayer(id, nickname, g.NextJoinSeq)
	g.NextJoinSeq++
	p.IsAdmin = len(g.Players) == 0
	if g.Phase != PhaseWaiting {
		p.Role = RoleSpectator
	}
	g.Players[id] = p
	return p, nil
}

// removePlayer deletes a player and hands admin to the earliest remaining
// joiner when needed. Lovers are left untouched.
func (g *Game) removePlayer(id string) {
	p, ok := g.Players[id]
	if !ok {
		return
	}
	delete(g.Players, id)
	if p.IsAdmin {
		if next := g.OrderedPlayers(); len(next) > 0 {
			next[0].IsAdmin = true
		}
	}
}

// Kick removes targetID on behalf of the admin.
func (g *Game) Kick(adminID, targetID string) error {
	if err := g.requireAdmin(adminID); err != nil {
		return err
	}
	if g.Phase != PhaseWaiting && g.Phase != PhaseGameOver {
		return ErrGameInProgress
	}
	if _, ok := g.Players[targetID]; !ok {
		return ErrPlayerNotFound
	}
	if targetID == adminID {
		return ErrKickSelf
	}
	g.removePlayer(targetID)
	return nil
}

// Leave removes the player from the room between games.
func (g *Game) Leave(playerID string) error {
	if _, ok := g.Players[playerID]; !ok {
		return ErrPlayerNotFound
	}
	if g.Phase != PhaseWaiting && g.Phase != PhaseGameOver {
		return ErrGameInProgress
	}
	g.removePlayer(playerID)
	return nil
}

// UpdateSettings replaces the room settings.
func (g *Game) UpdateSettings(adminID string, s Settings) error {
	if err := g.requireAdmin(adminID); err != nil {
		return err
	}
	if g.Phase != PhaseWaiting {
		return ErrWrongPhase
	}
	if err := s.Validate(); err != nil {
		return err
	}
	g.Settings = s.Clone()
	return nil
}

// AutoBalance replaces the role distribution with one sized for the current
// players.
func (g *Game) AutoBalance(adminID string) error {
	if err := g.requireAdmin(adminID); err != nil {
		return err
	}
	if g.Phase != PhaseWaiting {
		return ErrWrongPhase
	}
	g.Settings.RoleDistribution = AutoBalanceRoles(g.participantCount())
	return nil
}

func (g *Game) participantCount() int {
	n := 0
	for _, p := range g.Players {
		if p.IsParticipant() {
			n++
		}
	}
	return n
}

// Shuffler permutes n elements through swap.
type Shuffler func(n int, swap func(i, j int))

// StartOptions carries the optional parts of a start request.
type StartOptions struct {
	Settings    *Settings
	AutoBalance bool
	Shuffle     Shuffler
}

// Start assigns roles and moves the game to its first night.
func (g *Game) Start(adminID string, opts StartOptions) error {
	if err := g.requireAdmin(adminID); err != nil {
		return err
	}
	if g.Phase != PhaseWaiting {
		return ErrWrongPhase
	}

	settings := g.Settings.Clone()
	if opts.Settings != nil {
		settings = opts.Settings.Clone()
	}
	n := g.participantCount()
	if n == 0 {
		return ErrNoPlayers
	}
	if opts.AutoBalance {
		settings.RoleDistribution = AutoBalanceRoles(n)
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.TotalRoles() != n {
		return ErrRoleCountMismatch
	}

	g.Settings = settings
	g.assignRoles(opts.Shuffle)
	g.TurnCount = 1
	g.transitionTo(PhaseNight)
	g.CheckAndAdvance()
	return nil
}

func (g *Game) assignRoles(shuffle Shuffler) {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	roles := make([]RoleType, 0, g.Settings.TotalRoles())
	for _, role := range AllRoles {
		for i := 0; i < g.Settings.RoleDistribution[role]; i++ {
			roles = append(roles, role)
		}
	}
	shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	i := 0
	for _, p := range g.OrderedPlayers() {
		if !p.IsParticipant() {
			continue
		}
		p.Role = roles[i]
		i++
	}
}

// End cancels the game on behalf of the admin.
func (g *Game) End(adminID string) error {
	if err := g.requireAdmin(adminID); err != nil {
		return err
	}
	if g.Phase == PhaseGameOver {
		return ErrGameOver
	}
	g.finish(WinnerCancelled)
	return nil
}

// Restart returns the room to WAITING keeping every player.
func (g *Game) Restart(adminID string) error {
	if err := g.requireAdmin(adminID); err != nil {
		return err
	}
	g.transitionTo(PhaseWaiting)
	return nil
}

// SubmitAction records a night action and advances the phase when complete.
func (g *Game) SubmitAction(playerID string, a Action) (bool, error) {
	if g.Phase != PhaseNight && g.Phase != PhaseHunterRevenge {
		return false, ErrWrongPhase
	}
	if err := handlerFor(g.Phase).processAction(g, playerID, a); err != nil {
		return false, err
	}
	return g.CheckAndAdvance(), nil
}

// SubmitVote records a day vote and advances the phase when complete.
func (g *Game) SubmitVote(playerID, targetID string) (bool, error) {
	if g.Phase != PhaseDay {
		return false, ErrWrongPhase
	}
	if err := handlerFor(g.Phase).processAction(g, playerID, Action{TargetID: targetID, Confirmed: true}); err != nil {
		return false, err
	}
	return g.CheckAndAdvance(), nil
}

// CheckAndAdvance resolves the current phase if it is complete and enters the
// next one. It reports whether the phase changed.
func (g *Game) CheckAndAdvance() bool {
	h := handlerFor(g.Phase)
	if !h.checkCompletion(g) {
		return false
	}
	next := h.resolve(g)
	if next == g.Phase {
		return false
	}
	g.transitionTo(next)
	return true
}

// TransitionTo enters a phase, running its entry effects.
func (g *Game) TransitionTo(phase Phase) {
	g.transitionTo(phase)
}

func (g *Game) transitionTo(phase Phase) {
	g.Phase = phase
	g.PhaseStartTime = Now()
	for _, p := range g.Players {
		p.clearPhaseFields()
	}
	handlerFor(phase).onEnter(g)
}

// finish sets the winner once and enters GAME_OVER.
func (g *Game) finish(w Winner) {
	if g.Winners == "" {
		g.Winners = w
	}
	g.transitionTo(PhaseGameOver)
}

// CheckWinners evaluates the generic win conditions in priority order.
func (g *Game) CheckWinners() Winner {
	var alive []*Player
	wolves, others := 0, 0
	for _, p := range g.Players {
		if !p.IsAlive || !p.IsParticipant() {
			continue
		}
		alive = append(alive, p)
		if p.Role == RoleWerewolf {
			wolves++
		} else {
			others++
		}
	}

	if len(g.Lovers) == 2 && len(alive) == 2 {
		a, b := g.Lovers[0], g.Lovers[1]
		if (alive[0].ID == a && alive[1].ID == b) || (alive[0].ID == b && alive[1].ID == a) {
			return WinnerLovers
		}
	}
	if wolves == 0 {
		return WinnerVillagers
	}
	if wolves >= others {
		return WinnerWerewolves
	}
	return ""
}

// AliveWerewolves returns living werewolves in join order.
func (g *Game) AliveWerewolves() []*Player {
	var out []*Player
	for _, p := range g.OrderedPlayers() {
		if p.IsAlive && p.Role == RoleWerewolf {
			out = append(out, p)
		}
	}
	return out
}

// WerewolfConsensus returns the target all living werewolves have confirmed,
// or "" while they disagree, are undecided, or chose to skip.
func (g *Game) WerewolfConsensus() string {
	wolves := g.AliveWerewolves()
	if len(wolves) == 0 {
		return ""
	}
	target := wolves[0].NightActionTarget
	for _, w := range wolves {
		if !w.HasActed() || w.NightActionType != ActionKill || w.NightActionTarget != target {
			return ""
		}
	}
	return target
}

// WerewolfVoteDistribution counts the pending kill targets of living werewolves.
func (g *Game) WerewolfVoteDistribution() map[string]int {
	dist := make(map[string]int)
	for _, w := range g.AliveWerewolves() {
		if w.NightActionType == ActionKill && w.NightActionTarget != "" {
			dist[w.NightActionTarget]++
		}
	}
	return dist
}

// IsLover reports whether the player is one of the linked lovers.
func (g *Game) IsLover(playerID string) bool {
	for _, id := range g.Lovers {
		if id == playerID {
			return true
		}
	}
	return false
}

func (g *Game) addReveal(seerID, targetID string) {
	for _, id := range g.SeerReveals[seerID] {
		if id == targetID {
			return
		}
	}
	g.SeerReveals[seerID] = append(g.SeerReveals[seerID], targetID)
}

func (g *Game) hasRevealed(seerID, targetID string) bool {
	for _, id := range g.SeerReveals[seerID] {
		if id == targetID {
			return true
		}
	}
	return false
}

// livingTarget returns the target player if it exists and is alive.
func (g *Game) livingTarget(targetID string) (*Player, error) {
	if targetID == "" {
		return nil, ErrMissingTarget
	}
	t, ok := g.Players[targetID]
	if !ok || !t.IsParticipant() {
		return nil, ErrInvalidTarget
	}
	if !t.IsAlive {
		return nil, ErrTargetDead
	}
	return t, nil
}

// expandDeaths grows a set of dying players with the lovers pact until nothing
// changes. withHunters also applies tonight's confirmed hunter revenge; only
// night resolution sets it.
func (g *Game) expandDeaths(deaths map[string]bool, withHunters bool) {
	for changed := true; changed; {
		changed = false
		if withHunters {
			for id := range deaths {
				p, ok := g.Players[id]
				if !ok || p.Role != RoleHunter {
					continue
				}
				target := p.nightRevengeTarget()
				if target == "" {
					continue
				}
				t, ok := g.Players[target]
				if ok && t.IsAlive && !deaths[t.ID] {
					deaths[t.ID] = true
					changed = true
				}
			}
		}
		if len(g.Lovers) == 2 {
			a, b := g.Lovers[0], g.Lovers[1]
			for _, pair := range [][2]string{{a, b}, {b, a}} {
				other, ok := g.Players[pair[1]]
				if deaths[pair[0]] && ok && other.IsAlive && !deaths[pair[1]] {
					deaths[pair[1]] = true
					changed = true
				}
			}
		}
	}
}

func (g *Game) kill(deaths map[string]bool) {
	for id := range deaths {
		if p, ok := g.Players[id]; ok {
			p.IsAlive = false
		}
	}
}
