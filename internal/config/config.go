package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backend selectors.
const (
	BackendJSON       = "json"
	BackendClickHouse = "clickhouse"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string
	AdminIDs      []int64
	// LeadershipIDs decide achievement requests. Defaults to AdminIDs.
	LeadershipIDs []int64

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)

	// Storage backend: json (default) or clickhouse
	StorageBackend string
	DataDir        string // record store directory for the json backend

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	UseMockDB bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Admin IDs (required): appeal fan-out recipients
	adminIDs, err := parseIDList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	if len(adminIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS is required (comma-separated list of Telegram user IDs)")
	}
	config.AdminIDs = adminIDs

	// Leadership IDs (optional): achievement approvers, default to admins
	leadershipIDs, err := parseIDList(os.Getenv("LEADERSHIP_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEADERSHIP_IDS: %w", err)
	}
	if len(leadershipIDs) == 0 {
		leadershipIDs = adminIDs
	}
	config.LeadershipIDs = leadershipIDs

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"

	// Storage backend selection
	config.StorageBackend = os.Getenv("STORAGE_BACKEND")
	if config.StorageBackend == "" {
		config.StorageBackend = BackendJSON
	}

	switch config.StorageBackend {
	case BackendJSON:
		config.DataDir = os.Getenv("DATA_DIR")
		if config.DataDir == "" {
			config.DataDir = "data"
		}
	case BackendClickHouse:
		if !config.UseMockDB {
			if err := loadClickHouse(config); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND: %s (expected %s or %s)",
			config.StorageBackend, BackendJSON, BackendClickHouse)
	}

	return config, nil
}

func loadClickHouse(config *Config) error {
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_BACKEND is clickhouse")
	}

	portStr := os.Getenv("CLICKHOUSE_PORT")
	if portStr == "" {
		config.ClickHousePort = 9000 // Default ClickHouse native port
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		config.ClickHousePort = port
	}

	config.ClickHouseDatabase = os.Getenv("CLICKHOUSE_DATABASE")
	if config.ClickHouseDatabase == "" {
		config.ClickHouseDatabase = "default"
	}

	config.ClickHouseUser = os.Getenv("CLICKHOUSE_USER")
	if config.ClickHouseUser == "" {
		config.ClickHouseUser = "default"
	}

	config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
	// Password is optional, can be empty

	config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	return nil
}

func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
