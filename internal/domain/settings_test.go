package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoBalanceRoles(t *testing.T) {
	tests := []struct {
		players int
		want    map[RoleType]int
	}{
		{4, map[RoleType]int{RoleWerewolf: 1, RoleSeer: 1, RoleVillager: 2}},
		{5, map[RoleType]int{RoleWerewolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleCupid: 1, RoleVillager: 1}},
		{6, map[RoleType]int{RoleWerewolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleCupid: 1, RoleVillager: 2}},
		{7, map[RoleType]int{RoleWerewolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleCupid: 1, RoleWitch: 1, RoleTanner: 1, RoleVillager: 1}},
		{8, map[RoleType]int{RoleWerewolf: 1, RoleSeer: 1, RoleDoctor: 1, RoleCupid: 1, RoleWitch: 1, RoleTanner: 1, RoleVillager: 2}},
		{9, map[RoleType]int{RoleWerewolf: 2, RoleSeer: 1, RoleDoctor: 1, RoleCupid: 1, RoleWitch: 1, RoleTanner: 1, RoleHunter: 1, RoleLycan: 1, RoleVillager: 0}},
		{11, map[RoleType]int{RoleWerewolf: 2, RoleSeer: 1, RoleDoctor: 1, RoleCupid: 1, RoleWitch: 1, RoleTanner: 1, RoleHunter: 1, RoleLycan: 1, RoleBodyguard: 1, RoleVillager: 1}},
		{1, map[RoleType]int{RoleWerewolf: 1, RoleVillager: 0}},
	}

	for _, tt := range tests {
		got := AutoBalanceRoles(tt.players)
		assert.Equal(t, tt.want, got, "players=%d", tt.players)

		total := 0
		for _, n := range got {
			assert.GreaterOrEqual(t, n, 0)
			total += n
		}
		assert.Equal(t, tt.players, total, "players=%d", tt.players)
	}

	assert.Empty(t, AutoBalanceRoles(0))
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr error
	}{
		{"Default", func(*Settings) {}, nil},
		{"SpectatorNotAssignable", func(s *Settings) { s.RoleDistribution[RoleSpectator] = 1 }, ErrUnknownRole},
		{"NegativeCount", func(s *Settings) { s.RoleDistribution[RoleSeer] = -2 }, ErrNegativeCount},
		{"NegativeDuration", func(s *Settings) { s.PhaseDurationSeconds = -1 }, ErrNegativeDuration},
		{"ZeroCountAllowed", func(s *Settings) { s.RoleDistribution[RoleHunter] = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestSettingsCloneIsDeep(t *testing.T) {
	s := DefaultSettings()
	c := s.Clone()
	c.RoleDistribution[RoleWerewolf] = 5
	assert.Equal(t, 1, s.RoleDistribution[RoleWerewolf])
}

func TestSettingsJSONDefaults(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"timer_enabled": true}`), &s))
	assert.True(t, s.TimerEnabled)
	assert.Equal(t, DefaultPhaseDurationSeconds, s.PhaseDurationSeconds)
	assert.Equal(t, DefaultSettings().RoleDistribution, s.RoleDistribution)
}
