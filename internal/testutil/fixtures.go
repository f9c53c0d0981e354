package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/dom/werewolf/internal/domain"
	"github.com/dom/werewolf/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GameBuilder stores rooms with a fixed roster for tests
type GameBuilder struct {
	roomID    string
	settings  domain.Settings
	nicknames []string
	roles     []domain.RoleType
	phase     domain.Phase
}

// NewGameBuilder creates a new GameBuilder with a random room id and default
// settings
func NewGameBuilder() *GameBuilder {
	return &GameBuilder{
		roomID:   gonanoid.MustGenerate("abcdefghijkmnpqrstuvwxyz23456789", 8),
		settings: domain.DefaultSettings(),
		phase:    domain.PhaseWaiting,
	}
}

// WithRoomID sets the room id
func (b *GameBuilder) WithRoomID(roomID string) *GameBuilder {
	b.roomID = roomID
	return b
}

// WithSettings sets the room settings
func (b *GameBuilder) WithSettings(settings domain.Settings) *GameBuilder {
	b.settings = settings
	return b
}

// WithPlayers adds players p0..pN-1 with the given nicknames. The first one
// is the admin.
func (b *GameBuilder) WithPlayers(nicknames ...string) *GameBuilder {
	b.nicknames = append(b.nicknames, nicknames...)
	return b
}

// WithRoles assigns roles in player order and puts the game into the first
// night.
func (b *GameBuilder) WithRoles(roles ...domain.RoleType) *GameBuilder {
	b.roles = roles
	b.phase = domain.PhaseNight
	return b
}

// Build returns the game without storing it
func (b *GameBuilder) Build(t *testing.T) *domain.Game {
	t.Helper()

	g := domain.NewGame(b.roomID, b.settings.Clone())
	for i, name := range b.nicknames {
		if _, err := g.AddPlayer(PlayerID(i), name); err != nil {
			t.Fatalf("failed to add player %s: %v", name, err)
		}
	}

	if len(b.roles) > 0 {
		if len(b.roles) != len(b.nicknames) {
			t.Fatalf("have %d roles for %d players", len(b.roles), len(b.nicknames))
		}
		for i, role := range b.roles {
			g.Players[PlayerID(i)].Role = role
		}
		g.TurnCount = 1
		g.TransitionTo(b.phase)
	}
	return g
}

// Store builds the game and saves it
func (b *GameBuilder) Store(t *testing.T, games repository.GameRepository) *domain.Game {
	t.Helper()

	g := b.Build(t)
	if err := games.Save(context.Background(), g); err != nil {
		t.Fatalf("failed to save game: %v", err)
	}
	return g
}

// PlayerID is the id GameBuilder gives the i-th player
func PlayerID(i int) string {
	return fmt.Sprintf("p%d", i)
}

// CreateRequest creates a JSON HTTP request
func CreateRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return req
}

// Do sends a JSON request and returns the response. The body is closed at the
// end of the test.
func Do(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(CreateRequest(t, method, url, body))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
