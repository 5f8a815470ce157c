package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Agent      AgentConfig      `json:"agent"`
	Gateway    GatewayConfig    `json:"gateway"`
	Storage    StorageConfig    `json:"storage"`
	Memory     MemoryConfig     `json:"memory"`
	Task       TaskConfig       `json:"task"`
	Analysis   AnalysisConfig   `json:"analysis"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Log        LogConfig        `json:"log"`
}

type AgentConfig struct {
	ID          string `json:"id" env:"SLEEPAGENT_AGENT_ID"`
	Name        string `json:"name" env:"SLEEPAGENT_AGENT_NAME"`
	Description string `json:"description" env:"SLEEPAGENT_AGENT_DESCRIPTION"`
	Version     string `json:"version" env:"SLEEPAGENT_AGENT_VERSION"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"SLEEPAGENT_GATEWAY_HOST"`
	Port int    `json:"port" env:"SLEEPAGENT_GATEWAY_PORT"`
}

type StorageConfig struct {
	Path string `json:"path" env:"SLEEPAGENT_STORAGE_PATH"`
}

type MemoryConfig struct {
	STMRetentionDays int    `json:"stm_retention_days" env:"SLEEPAGENT_MEMORY_STM_RETENTION_DAYS"`
	LTMRetentionDays int    `json:"ltm_retention_days" env:"SLEEPAGENT_MEMORY_LTM_RETENTION_DAYS"`
	SweepSchedule    string `json:"sweep_schedule" env:"SLEEPAGENT_MEMORY_SWEEP_SCHEDULE"`
}

type TaskConfig struct {
	MaxSessions    int `json:"max_sessions" env:"SLEEPAGENT_TASK_MAX_SESSIONS"`
	TimeoutSeconds int `json:"timeout_seconds" env:"SLEEPAGENT_TASK_TIMEOUT_SECONDS"`
	Workers        int `json:"workers" env:"SLEEPAGENT_TASK_WORKERS"`
}

// AnalysisConfig carries the fixed heuristic thresholds. The optimal band and
// duration bounds are part of the scoring contract; changing them changes
// every score the agent produces.
type AnalysisConfig struct {
	OptimalDurationMin     float64 `json:"optimal_duration_min" env:"SLEEPAGENT_ANALYSIS_OPTIMAL_DURATION_MIN"`
	OptimalDurationMax     float64 `json:"optimal_duration_max" env:"SLEEPAGENT_ANALYSIS_OPTIMAL_DURATION_MAX"`
	MinDuration            float64 `json:"min_duration" env:"SLEEPAGENT_ANALYSIS_MIN_DURATION"`
	MaxDuration            float64 `json:"max_duration" env:"SLEEPAGENT_ANALYSIS_MAX_DURATION"`
	CaffeineCutoffHours    int     `json:"caffeine_cutoff_hours" env:"SLEEPAGENT_ANALYSIS_CAFFEINE_CUTOFF_HOURS"`
	ScreenTimeWarningHours float64 `json:"screen_time_warning_hours" env:"SLEEPAGENT_ANALYSIS_SCREEN_TIME_WARNING_HOURS"`
}

type SupervisorConfig struct {
	URL string `json:"url" env:"SLEEPAGENT_SUPERVISOR_URL"`
}

type LogConfig struct {
	Level    string `json:"level" env:"SLEEPAGENT_LOG_LEVEL"`
	File     string `json:"file" env:"SLEEPAGENT_LOG_FILE"`
	MaxBytes int64  `json:"max_bytes" env:"SLEEPAGENT_LOG_MAX_BYTES"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			ID:          "sleep-optimizer-agent-001",
			Name:        "Sleep Optimizer Agent",
			Description: "Analyzes sleep data and provides personalized optimization recommendations",
			Version:     "1.0.0",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Storage: StorageConfig{
			Path: "~/.sleepagent/state/memory.db",
		},
		Memory: MemoryConfig{
			STMRetentionDays: 7,
			LTMRetentionDays: 365,
			SweepSchedule:    "0 3 * * *",
		},
		Task: TaskConfig{
			MaxSessions:    1000,
			TimeoutSeconds: 300,
			Workers:        4,
		},
		Analysis: AnalysisConfig{
			OptimalDurationMin:     7.0,
			OptimalDurationMax:     9.0,
			MinDuration:            0.5,
			MaxDuration:            16.0,
			CaffeineCutoffHours:    8,
			ScreenTimeWarningHours: 2,
		},
		Supervisor: SupervisorConfig{
			URL: "http://localhost:5000",
		},
		Log: LogConfig{
			Level:    "INFO",
			File:     "",
			MaxBytes: 10 * 1024 * 1024,
		},
	}
}

// LoadConfig reads the JSON config at path (a missing file means defaults) and
// then applies SLEEPAGENT_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// StoragePath returns the sqlite db path with a leading ~ expanded.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

// TaskTimeout bounds one full pipeline run.
func (c *Config) TaskTimeout() time.Duration {
	if c.Task.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Task.TimeoutSeconds) * time.Second
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
