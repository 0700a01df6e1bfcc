package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration using Viper
// Priority order: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file details
	v.SetConfigName("server")
	v.SetConfigType("yaml")

	// Add config paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/quizcast")
	}

	// Enable environment variable binding
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables
	// These allow both QUIZCAST_SERVER_PORT and PORT to work
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.loglevel", "LOG_LEVEL")
	v.BindEnv("server.logformat", "LOG_FORMAT")
	v.BindEnv("server.ratelimit", "RATE_LIMIT")
	v.BindEnv("server.ratelimitburst", "RATE_LIMIT_BURST")
	v.BindEnv("server.maxrequestsize", "MAX_REQUEST_SIZE")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("provider.baseurl", "PROVIDER_BASE_URL")
	v.BindEnv("provider.apikey", "PROVIDER_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("provider.model", "PROVIDER_MODEL")

	// Server defaults
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "15s")
	v.SetDefault("server.idletimeout", "60s")
	v.SetDefault("server.shutdowntimeout", "30s")

	// Rate limiting defaults
	v.SetDefault("server.ratelimit", 10.0)
	v.SetDefault("server.ratelimitburst", 20)

	// Request limits
	v.SetDefault("server.maxrequestsize", 1048576) // 1MB

	// Logging defaults
	v.SetDefault("server.loglevel", "info")
	v.SetDefault("server.logformat", "json")

	// Game timing defaults
	v.SetDefault("game.roomttl", "4h")
	v.SetDefault("game.countdowncount", 3)
	v.SetDefault("game.revealdelay", "5s")
	v.SetDefault("game.winnerjingle", "3s")
	v.SetDefault("game.answergrace", "1s")
	v.SetDefault("game.tickinterval", "1s")

	// Fresh-room defaults
	v.SetDefault("game.defaultquestioncount", 10)
	v.SetDefault("game.defaulttimelimit", 20)
	v.SetDefault("game.defaultdifficulty", "mixed")
	v.SetDefault("game.defaultmaxplayers", 50)
	v.SetDefault("game.defaultminplayers", 2)

	// Provider defaults
	v.SetDefault("provider.timeout", "30s")

	// Try to read config file (it's optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if strings.Contains(err.Error(), "no such file or directory") {
				// File doesn't exist, continue with defaults
			} else {
				// Config file was found but another error occurred
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
		// Config file not found; continue with env vars and defaults
	}

	// Create config struct
	cfg := &Config{}

	// Unmarshal into the struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate required fields
	if v.GetString("server.port") == "" {
		return nil, fmt.Errorf("PORT environment variable must be set")
	}
	if v.GetString("server.host") == "" {
		return nil, fmt.Errorf("HOST environment variable must be set")
	}

	// Additional validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
