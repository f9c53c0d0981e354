package domain

// phaseHandler drives one phase of the state machine.
type phaseHandler interface {
	onEnter(g *Game)
	processAction(g *Game, playerID string, a Action) error
	checkCompletion(g *Game) bool
	resolve(g *Game) Phase
}

var phaseHandlers = map[Phase]phaseHandler{
	PhaseWaiting:       waitingPhase{},
	PhaseNight:         nightPhase{},
	PhaseDay:           dayPhase{},
	PhaseHunterRevenge: hunterRevengePhase{},
	PhaseGameOver:      gameOverPhase{},
}

func handlerFor(p Phase) phaseHandler {
	if h, ok := phaseHandlers[p]; ok {
		return h
	}
	return gameOverPhase{}
}

// setWinner records the winner unless one is already set.
func (g *Game) setWinner(w Winner) Phase {
	if g.Winners == "" {
		g.Winners = w
	}
	return PhaseGameOver
}

// winnerOr returns GAME_OVER when a side has won, otherwise next.
func (g *Game) winnerOr(next Phase) Phase {
	if w := g.CheckWinners(); w != "" {
		return g.setWinner(w)
	}
	return next
}

type waitingPhase struct{}

func (waitingPhase) onEnter(g *Game) {
	for _, p := range g.Players {
		p.resetForNewGame()
	}
	g.TurnCount = 0
	g.Winners = ""
	g.SeerReveals = make(map[string][]string)
	g.Lovers = nil
	g.VotedOutThisRound = ""
}

func (waitingPhase) processAction(*Game, string, Action) error { return ErrWrongPhase }
func (waitingPhase) checkCompletion(*Game) bool                { return false }
func (waitingPhase) resolve(*Game) Phase                       { return PhaseNight }

type nightPhase struct{}

func (nightPhase) onEnter(g *Game) {
	for _, p := range g.Players {
		p.clearPhaseFields()
		// A revenge pick only holds for the night it was made.
		p.HunterRevengeTarget = ""
	}
}

func (nightPhase) processAction(g *Game, playerID string, a Action) error {
	p, ok := g.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.IsAlive {
		return ErrPlayerDead
	}
	spec, ok := LookupRole(p.Role)
	if !ok || !spec.CanActAtNight || spec.HandleNightAction == nil {
		return ErrCannotActAtNight
	}
	if a.Type == ActionSkip {
		p.recordNightAction(ActionSkip, "", a.Confirmed)
		p.HunterRevengeTarget = ""
		return nil
	}
	return spec.HandleNightAction(g, p, a)
}

func (nightPhase) checkCompletion(g *Game) bool {
	wolfTargets := make(map[string]struct{})
	for _, p := range g.Players {
		if !p.IsAlive || !p.Role.CanActAtNight() {
			continue
		}
		if !p.HasActed() {
			return false
		}
		if p.Role == RoleWerewolf {
			wolfTargets[p.NightActionTarget] = struct{}{}
		}
	}
	return len(wolfTargets) <= 1
}

func (nightPhase) resolve(g *Game) Phase {
	kills := make(map[string]bool)
	saves := make(map[string]bool)
	var link string

	for _, p := range g.Players {
		if !p.IsAlive || p.NightActionTarget == "" {
			continue
		}
		switch {
		case p.Role == RoleWerewolf && p.NightActionType == ActionKill:
			kills[p.NightActionTarget] = true
		case p.Role == RoleWitch && p.NightActionType == ActionPoison:
			kills[p.NightActionTarget] = true
		case p.Role == RoleWitch && p.NightActionType == ActionHeal:
			saves[p.NightActionTarget] = true
		case (p.Role == RoleDoctor || p.Role == RoleBodyguard) && p.NightActionType == ActionSave:
			saves[p.NightActionTarget] = true
		case p.Role == RoleCupid && p.NightActionType == ActionLink:
			link = p.NightActionTarget
		}
	}

	if link != "" && g.TurnCount == 1 && len(g.Lovers) == 0 {
		if a, b, ok := splitLink(link); ok {
			g.Lovers = []string{a, b}
		}
	}

	for _, p := range g.Players {
		if p.IsAlive && p.Role == RoleBodyguard {
			p.LastProtectedTarget = ""
			if p.NightActionType == ActionSave {
				p.LastProtectedTarget = p.NightActionTarget
			}
		}
	}

	deaths := make(map[string]bool)
	for id := range kills {
		if !saves[id] {
			deaths[id] = true
		}
	}
	g.expandDeaths(deaths, true)
	g.kill(deaths)
	g.TurnCount++

	return g.winnerOr(PhaseDay)
}

type dayPhase struct{}

func (dayPhase) onEnter(g *Game) {
	for _, p := range g.Players {
		p.VoteTarget = ""
	}
	g.VotedOutThisRound = ""
}

func (dayPhase) processAction(g *Game, playerID string, a Action) error {
	p, ok := g.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.IsAlive {
		return ErrPlayerDead
	}
	if !p.Role.CanVote() {
		return ErrCannotVote
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	p.VoteTarget = a.TargetID
	return nil
}

func (dayPhase) checkCompletion(g *Game) bool {
	for _, p := range g.Players {
		if p.IsAlive && p.Role.CanVote() && p.VoteTarget == "" {
			return false
		}
	}
	return true
}

func (dayPhase) resolve(g *Game) Phase {
	eliminated, ok := g.tallyVotes()
	if !ok {
		return g.winnerOr(PhaseNight)
	}

	target := g.Players[eliminated]
	if target.Role == RoleTanner {
		return g.setWinner(WinnerTanner)
	}

	g.VotedOutThisRound = eliminated
	if target.Role == RoleHunter {
		// The hunter picks afresh in HUNTER_REVENGE.
		target.HunterRevengeTarget = ""
	}
	deaths := map[string]bool{eliminated: true}
	g.expandDeaths(deaths, false)
	g.kill(deaths)

	if target.Role == RoleHunter {
		return PhaseHunterRevenge
	}
	return g.winnerOr(PhaseNight)
}

// tallyVotes returns the player holding the strict maximum of votes.
func (g *Game) tallyVotes() (string, bool) {
	counts := make(map[string]int)
	for _, p := range g.Players {
		if p.IsAlive && p.VoteTarget != "" {
			counts[p.VoteTarget]++
		}
	}
	best, top, tied := "", 0, false
	for id, n := range counts {
		switch {
		case n > top:
			best, top, tied = id, n, false
		case n == top:
			tied = true
		}
	}
	if top == 0 || tied {
		return "", false
	}
	if _, ok := g.Players[best]; !ok {
		return "", false
	}
	return best, true
}

type hunterRevengePhase struct{}

func (hunterRevengePhase) onEnter(g *Game) {
	if h, ok := g.Players[g.VotedOutThisRound]; ok {
		h.clearPhaseFields()
	}
}

func (hunterRevengePhase) processAction(g *Game, playerID string, a Action) error {
	p, ok := g.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if playerID != g.VotedOutThisRound || p.Role != RoleHunter {
		return nil
	}
	if a.Type != ActionRevenge {
		return ErrUnknownActionType
	}
	if a.TargetID == playerID {
		return ErrInvalidTarget
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	p.recordNightAction(ActionRevenge, a.TargetID, a.Confirmed)
	if a.Confirmed {
		p.HunterRevengeTarget = a.TargetID
	}
	return nil
}

func (hunterRevengePhase) checkCompletion(g *Game) bool {
	h, ok := g.Players[g.VotedOutThisRound]
	if !ok {
		return true
	}
	return h.HasActed() && h.NightActionTarget != ""
}

func (hunterRevengePhase) resolve(g *Game) Phase {
	if h, ok := g.Players[g.VotedOutThisRound]; ok && h.NightActionTarget != "" {
		if t, ok := g.Players[h.NightActionTarget]; ok && t.IsAlive {
			deaths := map[string]bool{t.ID: true}
			g.expandDeaths(deaths, false)
			g.kill(deaths)
		}
	}
	return g.winnerOr(PhaseNight)
}

type gameOverPhase struct{}

func (gameOverPhase) onEnter(*Game)                             {}
func (gameOverPhase) processAction(*Game, string, Action) error { return ErrGameOver }
func (gameOverPhase) checkCompletion(*Game) bool                { return false }
func (gameOverPhase) resolve(*Game) Phase                       { return PhaseGameOver }
