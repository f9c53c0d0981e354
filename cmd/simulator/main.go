package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	apiURL := "http://localhost:8080"
	if envURL := os.Getenv("API_URL"); envURL != "" {
		apiURL = envURL
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "full":
		fullCmd(apiURL, args)
	case "populate":
		populateCmd(apiURL, args)
	case "show":
		showCmd(apiURL, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Room Simulator - Development tool for filling werewolf rooms with bots

USAGE:
  simulator <command> [options]

COMMANDS:
  full      Create a room, add bots, and optionally start the game
  populate  Add bots to an existing room
  show      Print a room as seen by one player (or the public view)
  help      Show this help message

ENVIRONMENT:
  API_URL   Backend API URL (default: http://localhost:8080)

EXAMPLES:
  # Create a room with 5 bots and leave it in the lobby for you to join
  simulator full --count=5

  # Create a room with 7 bots and start it with an auto-balanced deck
  simulator full --count=7 --start

  # Add 3 more bots to an existing room
  simulator populate --room=abcd2345 --count=3

  # Show the room as one of the bots sees it
  simulator show --room=abcd2345 --player=<player id>`)
}

func fullCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("full", flag.ExitOnError)
	count := fs.Int("count", 5, "Number of bots to create, the first one is the admin")
	start := fs.Bool("start", false, "Start the game with an auto-balanced deck once everyone joined")
	duration := fs.Int("duration", 0, "Phase duration in seconds (0 keeps the server default)")
	fs.Parse(args)

	if *count < 1 || *count > 20 {
		fmt.Println("Error: --count must be between 1 and 20")
		os.Exit(1)
	}

	client := NewAPIClient(apiURL)

	fmt.Println("=== Room Simulator: Full Flow ===")
	fmt.Println()

	fmt.Print("Creating room... ")
	room, err := client.CreateRoom(*duration)
	if err != nil {
		fmt.Printf("FAILED\n  Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK (room: %s)\n", room.RoomID)

	fmt.Println()
	fmt.Printf("Adding %d bots to room:\n", *count)
	ids := joinBots(client, room.RoomID, *count, 0)
	if len(ids) == 0 {
		fmt.Println("No bot could join, giving up.")
		os.Exit(1)
	}
	admin := ids[0]

	if !*start {
		fmt.Println()
		fmt.Println("=========================================")
		fmt.Println("  ROOM WAITING FOR PLAYERS")
		fmt.Println("=========================================")
		fmt.Println()
		fmt.Printf("  Room URL:  http://localhost:5173/room/%s\n", room.RoomID)
		fmt.Printf("  Room ID:   %s\n", room.RoomID)
		fmt.Printf("  Admin ID:  %s\n", admin)
		fmt.Println()
		fmt.Println("  Join from the browser, then start with:")
		fmt.Printf("  curl -X POST %s/api/rooms/%s/start -d '{\"player_id\":\"%s\",\"auto_balance\":true}'\n", apiURL, room.RoomID, admin)
		fmt.Println()
		return
	}

	fmt.Println()
	fmt.Print("Starting game with auto-balance... ")
	view, err := client.StartGame(room.RoomID, admin, true)
	if err != nil {
		fmt.Printf("FAILED\n  Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK (phase: %s)\n", view.Phase)

	fmt.Println()
	fmt.Println("=========================================")
	fmt.Println("  GAME STARTED")
	fmt.Println("=========================================")
	fmt.Println()
	printRoles(client, room.RoomID, ids)
	fmt.Println()
}

func populateCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("populate", flag.ExitOnError)
	roomID := fs.String("room", "", "Room ID (required)")
	count := fs.Int("count", 3, "Number of bots to add")
	fs.Parse(args)

	if *roomID == "" {
		fmt.Println("Error: --room is required")
		fmt.Println("\nUsage: simulator populate --room=abcd2345 [--count=3]")
		os.Exit(1)
	}

	client := NewAPIClient(apiURL)

	room, err := client.GetRoom(*roomID, "")
	if err != nil {
		fmt.Printf("Failed to get room: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Adding %d bots to room %s...\n\n", *count, room.RoomID)
	joinBots(client, room.RoomID, *count, len(room.Players))

	fmt.Println()
	fmt.Printf("Done! View room at: http://localhost:5173/room/%s\n", room.RoomID)
}

func showCmd(apiURL string, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	roomID := fs.String("room", "", "Room ID (required)")
	playerID := fs.String("player", "", "View the room as this player")
	fs.Parse(args)

	if *roomID == "" {
		fmt.Println("Error: --room is required")
		fmt.Println("\nUsage: simulator show --room=abcd2345 [--player=<id>]")
		os.Exit(1)
	}

	client := NewAPIClient(apiURL)
	room, err := client.GetRoom(*roomID, *playerID)
	if err != nil {
		fmt.Printf("Failed to get room: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Room %s  phase=%s  turn=%d", room.RoomID, room.Phase, room.TurnCount)
	if room.Winners != "" {
		fmt.Printf("  winners=%s", room.Winners)
	}
	fmt.Println()
	fmt.Println()

	for _, p := range sortedPlayers(room) {
		role := p.Role
		if role == "" {
			role = "?"
		}
		flags := ""
		if p.IsAdmin {
			flags += " admin"
		}
		if !p.IsAlive {
			flags += " dead"
		}
		if p.IsOnline {
			flags += " online"
		}
		fmt.Printf("  %-12s %-10s %s%s\n", p.Nickname, role, p.ID, flags)
	}
}

// joinBots joins count bots named from offset+1 and returns the ids that made
// it in.
func joinBots(client *APIClient, roomID string, count, offset int) []string {
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		nickname := fmt.Sprintf("Bot%d", offset+i+1)
		id, err := client.JoinRoom(roomID, nickname)
		if err != nil {
			fmt.Printf("  [%d/%d] FAILED to join: %v\n", i+1, count, err)
			continue
		}
		ids = append(ids, id)
		fmt.Printf("  [%d/%d] %s joined (%s)\n", i+1, count, nickname, id)
	}
	return ids
}

// printRoles shows each bot's own role, which only that bot's view reveals.
func printRoles(client *APIClient, roomID string, ids []string) {
	for _, id := range ids {
		view, err := client.GetRoom(roomID, id)
		if err != nil {
			fmt.Printf("  %s: %v\n", id, err)
			continue
		}
		self := view.Players[id]
		if self == nil {
			continue
		}
		fmt.Printf("  %-8s %-10s %s\n", self.Nickname, self.Role, id)
	}
}

func sortedPlayers(room *Room) []*Player {
	out := make([]*Player, 0, len(room.Players))
	for _, p := range room.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out
}
