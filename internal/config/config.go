package config

import (
	"fmt"
	"time"
)

// This file defines the configuration structures used by viper_config.go
// The actual loading is handled by viper in viper_config.go

// Config is the process-wide configuration snapshot, loaded once at startup.
type Config struct {
	Server   ServerSettings   `yaml:"server"`
	Game     GameSettings     `yaml:"game"`
	Redis    RedisSettings    `yaml:"redis"`
	Database DatabaseSettings `yaml:"database"`
	Provider ProviderSettings `yaml:"provider"`
}

// ServerSettings contains the HTTP/websocket surface settings.
type ServerSettings struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Rate limiting (using golang.org/x/time/rate)
	RateLimit      float64 `yaml:"rateLimit"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`

	MaxRequestSize int64 `yaml:"maxRequestSize"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// GameSettings drives the phase machine timings and the defaults a fresh
// room starts with. Tests shrink the durations; production keeps the
// defaults below.
type GameSettings struct {
	RoomTTL        time.Duration `yaml:"roomTtl"`
	CountdownCount int           `yaml:"countdownCount"`
	RevealDelay    time.Duration `yaml:"revealDelay"`
	WinnerJingle   time.Duration `yaml:"winnerJingle"`
	AnswerGrace    time.Duration `yaml:"answerGrace"`
	TickInterval   time.Duration `yaml:"tickInterval"`

	DefaultQuestionCount int    `yaml:"defaultQuestionCount"`
	DefaultTimeLimit     int    `yaml:"defaultTimeLimit"`
	DefaultDifficulty    string `yaml:"defaultDifficulty"`
	DefaultMaxPlayers    int    `yaml:"defaultMaxPlayers"`
	DefaultMinPlayers    int    `yaml:"defaultMinPlayers"`
}

// RedisSettings selects the shared room cache. An empty Addr keeps the
// in-process store.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseSettings selects the question catalog and session archive. An
// empty URL keeps the embedded starter pack and a no-op archive.
type DatabaseSettings struct {
	URL string `yaml:"url"`
}

// ProviderSettings points at an OpenAI-compatible endpoint for question
// generation. An empty BaseURL disables generation.
type ProviderSettings struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Port:            "", // Must be set via env
			Host:            "", // Must be set via env
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,

			RateLimit:      10,
			RateLimitBurst: 20,
			MaxRequestSize: 1048576, // 1MB

			LogLevel:  "info",
			LogFormat: "json",
		},
		Game: GameSettings{
			RoomTTL:        4 * time.Hour,
			CountdownCount: 3,
			RevealDelay:    5 * time.Second,
			WinnerJingle:   3 * time.Second,
			AnswerGrace:    time.Second,
			TickInterval:   time.Second,

			DefaultQuestionCount: 10,
			DefaultTimeLimit:     20,
			DefaultDifficulty:    "mixed",
			DefaultMaxPlayers:    50,
			DefaultMinPlayers:    2,
		},
		Provider: ProviderSettings{
			Timeout: 30 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT environment variable must be set")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("HOST environment variable must be set")
	}

	if c.Game.RoomTTL <= 0 {
		return fmt.Errorf("game roomTtl must be positive")
	}
	if c.Game.CountdownCount < 1 {
		return fmt.Errorf("game countdownCount must be at least 1")
	}
	if c.Game.TickInterval <= 0 {
		return fmt.Errorf("game tickInterval must be positive")
	}
	if c.Game.DefaultMinPlayers < 2 {
		return fmt.Errorf("game defaultMinPlayers must be at least 2")
	}
	if c.Game.DefaultMinPlayers > c.Game.DefaultMaxPlayers {
		return fmt.Errorf("game defaultMinPlayers cannot be greater than defaultMaxPlayers")
	}
	if c.Game.DefaultTimeLimit < 5 || c.Game.DefaultTimeLimit > 60 {
		return fmt.Errorf("game defaultTimeLimit must be between 5 and 60 seconds")
	}

	if c.Provider.BaseURL != "" && c.Provider.Model == "" {
		return fmt.Errorf("provider model must be set when provider baseUrl is set")
	}

	return nil
}
