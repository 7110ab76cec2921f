package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Game     GameConfig
	History  HistoryConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	Environment   string // "development", "production", "test"
	Debug         bool
	MarkRateLimit int // mark and bingo requests per player per minute
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	SnapshotTTL time.Duration
}

type GameConfig struct {
	FreeCenter        bool
	RequireDrawnMarks bool
	StrictTransitions bool
	RemovalPolicy     string // "keep", "end_on_host", "end_when_empty"
	WinPatterns       []string
	EndOnWin          bool
	// AutoDrawInterval draws for every active game on a timer; zero disables it.
	AutoDrawInterval time.Duration
	// CompletedRetention and IdleTimeout unload untouched games; zero keeps them.
	CompletedRetention time.Duration
	IdleTimeout        time.Duration
}

type HistoryConfig struct {
	Enabled bool
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			Port:          getEnvInt("SERVER_PORT", 8080),
			Environment:   getEnv("APP_ENV", "development"),
			Debug:         getEnvBool("DEBUG", false),
			MarkRateLimit: getEnvInt("MARK_RATE_LIMIT", 120),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvInt("DB_PORT", 5432),
			User:           getEnv("DB_USER", "bingo"),
			Password:       getEnv("DB_PASSWORD", "bingo"),
			DBName:         getEnv("DB_NAME", "livebingo"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnvNonEmpty("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnvInt("REDIS_PORT", 6379),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			SnapshotTTL: getEnvDuration("GAME_SNAPSHOT_TTL", 24*time.Hour),
		},
		Game: GameConfig{
			FreeCenter:         getEnvBool("GAME_FREE_CENTER", false),
			RequireDrawnMarks:  getEnvBool("GAME_REQUIRE_DRAWN_MARKS", true),
			StrictTransitions:  getEnvBool("GAME_STRICT_TRANSITIONS", false),
			RemovalPolicy:      getEnvNonEmpty("GAME_REMOVAL_POLICY", "keep"),
			WinPatterns:        getEnvList("GAME_WIN_PATTERNS", []string{"row", "column", "diagonal"}),
			EndOnWin:           getEnvBool("GAME_END_ON_WIN", false),
			AutoDrawInterval:   getEnvDuration("GAME_AUTO_DRAW_INTERVAL", 0),
			CompletedRetention: getEnvDuration("GAME_COMPLETED_RETENTION", 15*time.Minute),
			IdleTimeout:        getEnvDuration("GAME_IDLE_TIMEOUT", 6*time.Hour),
		},
		History: HistoryConfig{
			Enabled: getEnvBool("HISTORY_ENABLED", false),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid SERVER_PORT %d", cfg.Server.Port)
	}
	if cfg.Game.AutoDrawInterval < 0 {
		return nil, fmt.Errorf("invalid GAME_AUTO_DRAW_INTERVAL %s", cfg.Game.AutoDrawInterval)
	}
	if cfg.Game.CompletedRetention < 0 || cfg.Game.IdleTimeout < 0 {
		return nil, fmt.Errorf("invalid game retention %s/%s", cfg.Game.CompletedRetention, cfg.Game.IdleTimeout)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvNonEmpty(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		if strings.TrimSpace(value) != "" {
			return value
		}
		return defaultValue
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("2s", "1m30s") or whole seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValues []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return defaultValues
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			item := strings.TrimSpace(part)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return defaultValues
}
