package domain

import "encoding/json"

// DefaultPhaseDurationSeconds is the client countdown length for a new room.
const DefaultPhaseDurationSeconds = 60

// Settings holds the role distribution and phase behavior flags of a room.
type Settings struct {
	RoleDistribution     map[RoleType]int `json:"role_distribution"`
	PhaseDurationSeconds int              `json:"phase_duration_seconds"`
	TimerEnabled         bool             `json:"timer_enabled"`
	RevealRoleOnDeath    bool             `json:"reveal_role_on_death"`
	DramaticTonesEnabled bool             `json:"dramatic_tones_enabled"`
}

// DefaultSettings returns the settings used when a room is created without any.
func DefaultSettings() Settings {
	return Settings{
		RoleDistribution: map[RoleType]int{
			RoleWerewolf: 1,
			RoleSeer:     1,
			RoleDoctor:   1,
			RoleVillager: 1,
		},
		PhaseDurationSeconds: DefaultPhaseDurationSeconds,
	}
}

// UnmarshalJSON fills missing fields with defaults.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type alias Settings
	a := alias{PhaseDurationSeconds: DefaultPhaseDurationSeconds}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.RoleDistribution == nil {
		a.RoleDistribution = DefaultSettings().RoleDistribution
	}
	*s = Settings(a)
	return nil
}

// Validate checks the settings without looking at any player.
func (s Settings) Validate() error {
	for role, count := range s.RoleDistribution {
		if !role.IsValid() || role == RoleSpectator {
			return ErrUnknownRole
		}
		if count < 0 {
			return ErrNegativeCount
		}
	}
	if s.PhaseDurationSeconds < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// TotalRoles sums the role distribution.
func (s Settings) TotalRoles() int {
	total := 0
	for _, count := range s.RoleDistribution {
		total += count
	}
	return total
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.RoleDistribution = make(map[RoleType]int, len(s.RoleDistribution))
	for role, count := range s.RoleDistribution {
		out.RoleDistribution[role] = count
	}
	return out
}

// balanceStep adds roles once the player count reaches a threshold.
type balanceStep struct {
	minPlayers int
	roles      map[RoleType]int
}

// balanceSteps are applied in order; later steps overwrite earlier counts.
var balanceSteps = []balanceStep{
	{minPlayers: 0, roles: map[RoleType]int{RoleWerewolf: 1, RoleSeer: 1}},
	{minPlayers: 5, roles: map[RoleType]int{RoleDoctor: 1, RoleCupid: 1}},
	{minPlayers: 7, roles: map[RoleType]int{RoleWitch: 1, RoleTanner: 1}},
	{minPlayers: 9, roles: map[RoleType]int{RoleWerewolf: 2, RoleHunter: 1, RoleLycan: 1}},
	{minPlayers: 11, roles: map[RoleType]int{RoleBodyguard: 1}},
}

// trimOrder lists which special roles are dropped first when there are
// fewer players than the base set needs.
var trimOrder = []RoleType{RoleSeer, RoleWerewolf}

// AutoBalanceRoles builds a role distribution for n players. The result always
// sums to n.
func AutoBalanceRoles(n int) map[RoleType]int {
	dist := make(map[RoleType]int)
	if n <= 0 {
		return dist
	}
	for _, step := range balanceSteps {
		if n < step.minPlayers {
			break
		}
		for role, count := range step.roles {
			dist[role] = count
		}
	}

	specials := 0
	for _, count := range dist {
		specials += count
	}
	for _, role := range trimOrder {
		for specials > n && dist[role] > 0 {
			dist[role]--
			specials--
		}
		if dist[role] == 0 {
			delete(dist, role)
		}
	}
	dist[RoleVillager] = n - specials
	return dist
}
