package domain

import "encoding/json"

// Player is one participant of a Game. Zero-valued strings mean "none".
type Player struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	JoinSeq  int      `json:"join_seq"`
	IsAdmin  bool     `json:"is_admin"`
	IsAlive  bool     `json:"is_alive"`
	Role     RoleType `json:"role,omitempty"`

	// Role specific state
	WitchHasHeal        bool   `json:"witch_has_heal"`
	WitchHasPoison      bool   `json:"witch_has_poison"`
	LastProtectedTarget string `json:"last_protected_target,omitempty"`
	HunterRevengeTarget string `json:"hunter_revenge_target,omitempty"`

	// Reset on every phase entry
	VoteTarget           string     `json:"vote_target,omitempty"`
	NightActionTarget    string     `json:"night_action_target,omitempty"`
	NightActionType      ActionType `json:"night_action_type,omitempty"`
	NightActionConfirmed bool       `json:"night_action_confirmed"`
}

func newPlayer(id, nickname string, seq int) *Player {
	p := &Player{ID: id, Nickname: nickname, JoinSeq: seq}
	p.resetForNewGame()
	return p
}

// UnmarshalJSON applies defaults for fields missing from older payloads.
func (p *Player) UnmarshalJSON(data []byte) error {
	type alias Player
	a := alias{IsAlive: true, WitchHasHeal: true, WitchHasPoison: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Player(a)
	return nil
}

// HasNightAction reports whether a night action (including SKIP) is pending.
func (p *Player) HasNightAction() bool {
	return p.NightActionType != ""
}

// HasActed reports whether the player has a confirmed night action.
func (p *Player) HasActed() bool {
	return p.HasNightAction() && p.NightActionConfirmed
}

// IsParticipant reports whether the player takes part in the current game
// as opposed to watching it.
func (p *Player) IsParticipant() bool {
	return p.Role != RoleSpectator
}

func (p *Player) resetForNewGame() {
	p.IsAlive = true
	p.Role = ""
	p.WitchHasHeal = true
	p.WitchHasPoison = true
	p.LastProtectedTarget = ""
	p.HunterRevengeTarget = ""
	p.clearPhaseFields()
}

func (p *Player) clearPhaseFields() {
	p.VoteTarget = ""
	p.NightActionTarget = ""
	p.NightActionType = ""
	p.NightActionConfirmed = false
}

// nightRevengeTarget is the hunter's confirmed REVENGE pick for the current
// night, or "".
func (p *Player) nightRevengeTarget() string {
	if p.NightActionType != ActionRevenge || !p.NightActionConfirmed {
		return ""
	}
	return p.NightActionTarget
}

// withdrawNightAction drops the pending night action, returning any potion it
// had reserved.
func (p *Player) withdrawNightAction() {
	switch p.NightActionType {
	case ActionHeal:
		p.WitchHasHeal = true
	case ActionPoison:
		p.WitchHasPoison = true
	}
	p.NightActionTarget = ""
	p.NightActionType = ""
	p.NightActionConfirmed = false
}

func (p *Player) recordNightAction(t ActionType, target string, confirmed bool) {
	p.withdrawNightAction()
	p.NightActionType = t
	p.NightActionTarget = target
	p.NightActionConfirmed = confirmed
}
