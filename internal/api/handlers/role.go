package handlers

import (
	"net/http"

	"github.com/dom/werewolf/internal/domain"
)

type RoleResponse struct {
	Type          domain.RoleType `json:"type"`
	Description   string          `json:"description"`
	CanVote       bool            `json:"can_vote"`
	CanActAtNight bool            `json:"can_act_at_night"`
}

// ListRoles returns the role catalogue in assignment order.
func ListRoles(w http.ResponseWriter, r *http.Request) {
	roles := make([]RoleResponse, 0, len(domain.AllRoles))
	for _, role := range domain.AllRoles {
		spec, ok := domain.LookupRole(role)
		if !ok {
			continue
		}
		roles = append(roles, RoleResponse{
			Type:          spec.Type,
			Description:   spec.Description,
			CanVote:       spec.CanVote,
			CanActAtNight: spec.CanActAtNight,
		})
	}
	writeJSON(w, http.StatusOK, roles)
}
