package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

type ConsoleConfig struct {
	APIBaseURL string
	Locale     string
	Floor      int
	StageName  string
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Locale:     getEnv("GAME_LOCALE", "en"),
		Floor:      getEnvInt("GAME_FLOOR", 1),
		StageName:  getEnv("GAME_STAGE", "the Shadowmere Depths"),
	}

	client := &http.Client{Timeout: 10 * time.Second}
	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: go run ./cmd/api\n")
		os.Exit(1)
	}

	wsURL := "ws" + strings.TrimPrefix(cfg.APIBaseURL, "http") + "/ws"
	game, err := Connect(wsURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open game connection: %v\n", err)
		os.Exit(1)
	}
	defer game.Close()

	p := tea.NewProgram(NewConsoleUI(cfg, game, defaultParty()),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// defaultParty is the local demo party used when no character service
// is wired up.
func defaultParty() []protocol.PartyMemberInit {
	return []protocol.PartyMemberInit{
		{Name: "Hero", Level: 3, ClassName: "Warrior", HP: 24, MaxHP: 24, IsCharacter: true},
		{Name: "Lyra", Level: 2, ClassName: "Mage", HP: 14, MaxHP: 14},
		{Name: "Brann", Level: 2, ClassName: "Ranger", HP: 18, MaxHP: 18},
	}
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
