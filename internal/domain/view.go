package domain

import "time"

// PlayerView is one player as seen by a particular viewer. Hidden fields are
// left at their zero value.
type PlayerView struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	IsAdmin  bool     `json:"is_admin"`
	IsAlive  bool     `json:"is_alive"`
	IsOnline bool     `json:"is_online"`
	Role     RoleType `json:"role,omitempty"`

	VoteTarget           string     `json:"vote_target,omitempty"`
	NightActionTarget    string     `json:"night_action_target,omitempty"`
	NightActionType      ActionType `json:"night_action_type,omitempty"`
	NightActionConfirmed bool       `json:"night_action_confirmed,omitempty"`
	HasNightAction       bool       `json:"has_night_action"`

	// Only set on the viewer's own entry
	WitchHasHeal        *bool          `json:"witch_has_heal,omitempty"`
	WitchHasPoison      *bool          `json:"witch_has_poison,omitempty"`
	LastProtectedTarget string         `json:"last_protected_target,omitempty"`
	HunterRevengeTarget string         `json:"hunter_revenge_target,omitempty"`
	RoleDescription     string         `json:"role_description,omitempty"`
	NightInfo           *NightInfo     `json:"night_info,omitempty"`
	WerewolfVotes       map[string]int `json:"werewolf_votes,omitempty"`
}

// GameView is the redacted game state sent to one viewer.
type GameView struct {
	RoomID            string                 `json:"room_id"`
	Phase             Phase                  `json:"phase"`
	Players           map[string]*PlayerView `json:"players"`
	Settings          Settings               `json:"settings"`
	TurnCount         int                    `json:"turn_count"`
	Winners           Winner                 `json:"winners,omitempty"`
	Lovers            []string               `json:"lovers,omitempty"`
	VotedOutThisRound string                 `json:"voted_out_this_round,omitempty"`
	PhaseStartTime    time.Time              `json:"phase_start_time"`
	ViewerID          string                 `json:"viewer_id,omitempty"`
	Version           int64                  `json:"version"`
}

// Project builds the view of g for viewerID. An empty or unknown viewer gets
// the public view. online marks which players currently hold a presence key.
func Project(g *Game, viewerID string, online map[string]bool) *GameView {
	v := &GameView{
		RoomID:            g.RoomID,
		Phase:             g.Phase,
		Players:           make(map[string]*PlayerView, len(g.Players)),
		Settings:          g.Settings.Clone(),
		TurnCount:         g.TurnCount,
		Winners:           g.Winners,
		VotedOutThisRound: g.VotedOutThisRound,
		PhaseStartTime:    g.PhaseStartTime,
		Version:           g.Version,
	}

	viewer, known := g.Players[viewerID]
	if known {
		v.ViewerID = viewerID
	}
	gameOver := g.Phase == PhaseGameOver
	omniscient := known && (viewer.Role == RoleSpectator || !viewer.IsAlive)
	viewerWolf := known && viewer.IsAlive && viewer.Role == RoleWerewolf

	for id, p := range g.Players {
		pv := &PlayerView{
			ID:       p.ID,
			Nickname: p.Nickname,
			IsAdmin:  p.IsAdmin,
			IsAlive:  p.IsAlive,
			IsOnline: online[id],
		}
		self := known && id == viewerID
		packmate := viewerWolf && p.IsAlive && p.Role == RoleWerewolf
		revealed := known && g.hasRevealed(viewerID, id)

		switch {
		case self, gameOver, omniscient, packmate,
			!p.IsAlive && g.Settings.RevealRoleOnDeath:
			pv.Role = p.Role
		case revealed:
			pv.Role = p.Role
			if p.Role == RoleLycan {
				pv.Role = RoleWerewolf
			}
		}

		if self || packmate {
			pv.NightActionTarget = p.NightActionTarget
			pv.NightActionType = p.NightActionType
			pv.NightActionConfirmed = p.NightActionConfirmed
			pv.HasNightAction = p.HasNightAction()
		}
		if self {
			pv.VoteTarget = p.VoteTarget
			fillSelf(g, p, pv)
		}
		v.Players[id] = pv
	}

	if known && (gameOver || omniscient || g.IsLover(viewerID) || viewer.Role == RoleCupid) {
		v.Lovers = append([]string(nil), g.Lovers...)
	}
	return v
}

func fillSelf(g *Game, p *Player, pv *PlayerView) {
	heal, poison := p.WitchHasHeal, p.WitchHasPoison
	if p.Role == RoleWitch {
		pv.WitchHasHeal = &heal
		pv.WitchHasPoison = &poison
	}
	pv.LastProtectedTarget = p.LastProtectedTarget
	pv.HunterRevengeTarget = p.HunterRevengeTarget

	spec, ok := LookupRole(p.Role)
	if !ok {
		return
	}
	pv.RoleDescription = spec.Description

	if spec.NightInfo != nil {
		switch {
		case g.Phase == PhaseNight && p.IsAlive:
			pv.NightInfo = spec.NightInfo(g, p)
		case g.Phase == PhaseHunterRevenge && g.VotedOutThisRound == p.ID:
			pv.NightInfo = spec.NightInfo(g, p)
		}
	}
	if g.Phase == PhaseNight && p.IsAlive && p.Role == RoleWerewolf {
		pv.WerewolfVotes = g.WerewolfVoteDistribution()
	}
}

// PlayerIDs returns every player id in join order.
func (g *Game) PlayerIDs() []string {
	players := g.OrderedPlayers()
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}
