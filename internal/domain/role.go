package domain

// RoleType is the secret role a player holds for one game.
type RoleType string

const (
	RoleVillager  RoleType = "VILLAGER"
	RoleWerewolf  RoleType = "WEREWOLF"
	RoleSeer      RoleType = "SEER"
	RoleDoctor    RoleType = "DOCTOR"
	RoleBodyguard RoleType = "BODYGUARD"
	RoleWitch     RoleType = "WITCH"
	RoleHunter    RoleType = "HUNTER"
	RoleCupid     RoleType = "CUPID"
	RoleLycan     RoleType = "LYCAN"
	RoleTanner    RoleType = "TANNER"
	RoleSpectator RoleType = "SPECTATOR"
)

// AllRoles contains every role in catalogue order
var AllRoles = []RoleType{
	RoleVillager, RoleWerewolf, RoleSeer, RoleDoctor, RoleBodyguard,
	RoleWitch, RoleHunter, RoleCupid, RoleLycan, RoleTanner, RoleSpectator,
}

// ActionType names a night action. Day votes carry no action type.
type ActionType string

const (
	ActionKill    ActionType = "KILL"
	ActionCheck   ActionType = "CHECK"
	ActionSave    ActionType = "SAVE"
	ActionHeal    ActionType = "HEAL"
	ActionPoison  ActionType = "POISON"
	ActionRevenge ActionType = "REVENGE"
	ActionLink    ActionType = "LINK"
	ActionSkip    ActionType = "SKIP"
)

// Action is a night action or vote submitted by a player.
type Action struct {
	Type      ActionType
	TargetID  string
	Confirmed bool
}

// NightInfo is the dynamic prompt shown to a role holder.
type NightInfo struct {
	Prompt           string       `json:"prompt"`
	ActionsAvailable []ActionType `json:"actions_available"`
	VictimID         string       `json:"victim_id,omitempty"`
}

// RoleSpec is the capability record for one role. Roles with no night action
// leave HandleNightAction and NightInfo nil.
type RoleSpec struct {
	Type          RoleType
	CanVote       bool
	CanActAtNight bool
	Description   string

	// NightInfo builds the prompt for the player during NIGHT and
	// HUNTER_REVENGE. It may return nil.
	NightInfo func(g *Game, p *Player) *NightInfo

	// HandleNightAction validates and records a night action. It must not
	// mutate anything before all validation has passed.
	HandleNightAction func(g *Game, p *Player, a Action) error
}

// roleTable is filled in init because the handlers reach back into it
// through Game methods.
var roleTable map[RoleType]*RoleSpec

func init() {
	roleTable = map[RoleType]*RoleSpec{
		RoleVillager: {
			Type:        RoleVillager,
			CanVote:     true,
			Description: "Find the werewolves and vote them out during the day.",
		},
		RoleWerewolf: {
			Type:              RoleWerewolf,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "Kill a villager each night with your pack. Don't get caught.",
			NightInfo:         werewolfNightInfo,
			HandleNightAction: werewolfAction,
		},
		RoleSeer: {
			Type:              RoleSeer,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "Inspect one player each night to reveal their true nature.",
			NightInfo:         seerNightInfo,
			HandleNightAction: seerAction,
		},
		RoleDoctor: {
			Type:              RoleDoctor,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "Protect one player from being killed each night.",
			NightInfo:         doctorNightInfo,
			HandleNightAction: doctorAction,
		},
		RoleBodyguard: {
			Type:              RoleBodyguard,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "Protect one player each night, but never the same player two nights in a row.",
			NightInfo:         bodyguardNightInfo,
			HandleNightAction: bodyguardAction,
		},
		RoleWitch: {
			Type:              RoleWitch,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "You hold one healing potion and one poison. Each can be used once per game.",
			NightInfo:         witchNightInfo,
			HandleNightAction: witchAction,
		},
		RoleHunter: {
			Type:              RoleHunter,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "If you die, you take the player you have chosen down with you.",
			NightInfo:         hunterNightInfo,
			HandleNightAction: hunterAction,
		},
		RoleCupid: {
			Type:              RoleCupid,
			CanVote:           true,
			CanActAtNight:     true,
			Description:       "On the first night, link two players as lovers. If one dies, so does the other.",
			NightInfo:         cupidNightInfo,
			HandleNightAction: cupidAction,
		},
		RoleLycan: {
			Type:        RoleLycan,
			CanVote:     true,
			Description: "You are a villager, but the Seer sees you as a werewolf.",
		},
		RoleTanner: {
			Type:        RoleTanner,
			CanVote:     true,
			Description: "You hate your job. You win alone if the village votes you out.",
		},
		RoleSpectator: {
			Type:        RoleSpectator,
			Description: "You joined after the game started. Watch and enjoy.",
		},
	}
}

// LookupRole returns the capability record for a role tag.
func LookupRole(t RoleType) (*RoleSpec, bool) {
	spec, ok := roleTable[t]
	return spec, ok
}

// IsValid checks if a role is known
func (r RoleType) IsValid() bool {
	_, ok := roleTable[r]
	return ok
}

// String returns the string representation of the role
func (r RoleType) String() string {
	return string(r)
}

// CanVote reports whether holders of this role vote during the day.
// Players without a role cannot vote.
func (r RoleType) CanVote() bool {
	spec, ok := roleTable[r]
	return ok && spec.CanVote
}

// CanActAtNight reports whether holders of this role must act at night.
func (r RoleType) CanActAtNight() bool {
	spec, ok := roleTable[r]
	return ok && spec.CanActAtNight
}

// Description returns the human readable role summary.
func (r RoleType) Description() string {
	if spec, ok := roleTable[r]; ok {
		return spec.Description
	}
	return ""
}
