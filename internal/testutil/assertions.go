package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/dom/werewolf/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies the status and that the {"detail"} body
// contains expectedMessage.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body struct {
		Detail string `json:"detail"`
	}
	AssertJSONResponse(t, resp, &body)
	assert.Contains(t, body.Detail, expectedMessage, "error message mismatch")
}

// AssertPhase verifies the phase of a view
func AssertPhase(t *testing.T, view *domain.GameView, expected domain.Phase) {
	t.Helper()
	assert.Equal(t, expected, view.Phase, "unexpected phase")
}

// AssertRoleHidden verifies a player's role is not visible in a view
func AssertRoleHidden(t *testing.T, view *domain.GameView, playerID string) {
	t.Helper()
	require.Contains(t, view.Players, playerID)
	assert.Empty(t, view.Players[playerID].Role, "role of %s should be hidden", playerID)
}

// AssertAlive verifies whether a player is alive in a view
func AssertAlive(t *testing.T, view *domain.GameView, playerID string, alive bool) {
	t.Helper()
	require.Contains(t, view.Players, playerID)
	assert.Equal(t, alive, view.Players[playerID].IsAlive, "unexpected alive flag for %s", playerID)
}
