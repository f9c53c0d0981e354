package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient talks to the game server's REST API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL + "/api",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Response types matching the server's views. Only the fields the simulator
// prints are decoded.

type Room struct {
	RoomID    string             `json:"room_id"`
	Phase     string             `json:"phase"`
	TurnCount int                `json:"turn_count"`
	Winners   string             `json:"winners"`
	Settings  Settings           `json:"settings"`
	Players   map[string]*Player `json:"players"`
	ViewerID  string             `json:"viewer_id"`
}

type Settings struct {
	RoleDistribution     map[string]int `json:"role_distribution"`
	PhaseDurationSeconds int            `json:"phase_duration_seconds"`
}

type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	IsAdmin  bool   `json:"is_admin"`
	IsAlive  bool   `json:"is_alive"`
	IsOnline bool   `json:"is_online"`
	Role     string `json:"role"`
}

type apiError struct {
	Detail string `json:"detail"`
}

func (c *APIClient) CreateRoom(duration int) (*Room, error) {
	var body any
	if duration > 0 {
		body = map[string]any{
			"settings": map[string]any{"phase_duration_seconds": duration},
		}
	}
	var room Room
	if err := c.do(http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return &room, nil
}

func (c *APIClient) GetRoom(roomID, playerID string) (*Room, error) {
	path := "/rooms/" + roomID
	if playerID != "" {
		path += "?player_id=" + playerID
	}
	var room Room
	if err := c.do(http.MethodGet, path, nil, &room); err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &room, nil
}

// JoinRoom joins under nickname and returns the assigned player id.
func (c *APIClient) JoinRoom(roomID, nickname string) (string, error) {
	var room Room
	if err := c.do(http.MethodPost, "/rooms/"+roomID+"/join", map[string]string{"nickname": nickname}, &room); err != nil {
		return "", fmt.Errorf("join room: %w", err)
	}
	return room.ViewerID, nil
}

func (c *APIClient) StartGame(roomID, adminID string, autoBalance bool) (*Room, error) {
	body := map[string]any{
		"player_id":    adminID,
		"auto_balance": autoBalance,
	}
	var room Room
	if err := c.do(http.MethodPost, "/rooms/"+roomID+"/start", body, &room); err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	return &room, nil
}

func (c *APIClient) do(method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var e apiError
		if json.Unmarshal(bodyBytes, &e) == nil && e.Detail != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, e.Detail)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
