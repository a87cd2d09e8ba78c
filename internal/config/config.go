package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Console  struct {
		URL          string `json:"url"`
		Email        string `json:"email"`
		Password     string `json:"password"`
		Headless     bool   `json:"headless"`
		ProfileDir   string `json:"profile_dir"`
		NavTimeoutMS int    `json:"nav_timeout_ms"`
		OpTimeoutMS  int    `json:"op_timeout_ms"`
	} `json:"console"`
	Scan struct {
		MaxConversations int     `json:"max_conversations"`
		HistoryDepth     int     `json:"history_depth"`
		IdleSeconds      float64 `json:"idle_seconds"`
		ActionDelayMS    int     `json:"action_delay_ms"`
		NeedsReplyFilter bool    `json:"needs_reply_filter"`
	} `json:"scan"`
	Throttle struct {
		WindowSeconds int `json:"window_seconds"`
	} `json:"throttle"`
	Backoff struct {
		InitialSeconds float64 `json:"initial_seconds"`
		Multiplier     float64 `json:"multiplier"`
		MaxSeconds     float64 `json:"max_seconds"`
	} `json:"backoff"`
	Gemini struct {
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxOutput   int     `json:"max_output_tokens"`
		MaxTokens   int     `json:"max_prompt_tokens"`
	} `json:"gemini"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Windows struct {
		StartSpec string `json:"start_spec"`
		StopSpec  string `json:"stop_spec"`
	} `json:"windows"`
	Label string `json:"label"`
}

// Load reads the config file, writing defaults on first run, then applies
// environment overrides (highest precedence). Credentials are expected from
// the environment and are never written back to disk.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".chatshopee"),
		LogLevel: "info",
	}
	cfg.Console.URL = "https://web.duoke.com/?lang=en#/dk/main/chat"
	cfg.Console.Headless = true
	cfg.Console.NavTimeoutMS = 60000
	cfg.Console.OpTimeoutMS = 5000
	cfg.Scan.MaxConversations = 50
	cfg.Scan.HistoryDepth = 20
	cfg.Scan.IdleSeconds = 3
	cfg.Scan.ActionDelayMS = 100
	cfg.Throttle.WindowSeconds = 180
	cfg.Backoff.InitialSeconds = 2
	cfg.Backoff.Multiplier = 2
	cfg.Backoff.MaxSeconds = 60
	cfg.Gemini.Model = "gemini-1.5-flash"
	cfg.Gemini.Temperature = 0.2
	cfg.Gemini.MaxOutput = 256
	cfg.Gemini.MaxTokens = 3000
	cfg.Server.Addr = ":8080"
	cfg.Label = "gpt"

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DUOKE_EMAIL"); v != "" {
		cfg.Console.Email = v
	}
	if v := os.Getenv("DUOKE_PASSWORD"); v != "" {
		cfg.Console.Password = v
	}
	if v := os.Getenv("DUOKE_URL"); v != "" {
		cfg.Console.URL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Console.Headless = b
		}
	}

	return cfg, nil
}

// Save marshals the config with indentation and writes it atomically.
// Credential fields are blanked first so secrets stay in the environment.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	clean := *cfg
	clean.Console.Email = ""
	clean.Console.Password = ""

	data, err := json.MarshalIndent(&clean, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
