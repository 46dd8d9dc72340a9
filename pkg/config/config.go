// Package config loads the orchestrator and worker process configuration
// from YAML (the teacher's own apply-manifest idiom, gopkg.in/yaml.v3),
// applying the same defaults the rest of the core falls back to when a
// field is left zero.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/scheduler"
	"github.com/hodei-pipelines/orchestrator/pkg/workerfactory"
)

// ServerConfig addresses the process binds.
type ServerConfig struct {
	GRPCAddr  string `yaml:"grpcAddr"`
	AdminAddr string `yaml:"adminAddr"`
}

// LogConfig configures the global zerolog logger (pkg/log.Init).
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// QueueConfig configures the job queue (C2).
type QueueConfig struct {
	MaxSize  int    `yaml:"maxSize"`
	Strategy string `yaml:"strategy"`
}

// RankingStrategy resolves the configured ranking strategy, defaulting to
// PriorityBased when unset.
func (q QueueConfig) RankingStrategy() queue.Strategy {
	if q.Strategy == "" {
		return queue.PriorityBased
	}
	return queue.Strategy(q.Strategy)
}

// SchedulerConfig configures the placement scheduler (C4).
type SchedulerConfig struct {
	DefaultStrategy string `yaml:"defaultStrategy"`
}

func (s SchedulerConfig) Strategy() scheduler.Strategy {
	if s.DefaultStrategy == "" {
		return scheduler.RoundRobin
	}
	return scheduler.Strategy(s.DefaultStrategy)
}

// CoordinatorConfig configures the execution coordinator (C9); a zero
// tick, grace period or registration window leaves the coordinator's own
// Default* constant in effect, and a zero worker reuse window disables
// worker reuse.
type CoordinatorConfig struct {
	Tick               time.Duration `yaml:"tick,omitempty"`
	GracePeriod        time.Duration `yaml:"gracePeriod,omitempty"`
	RegistrationWindow time.Duration `yaml:"registrationWindow,omitempty"`
	WorkerReuseWindow  time.Duration `yaml:"workerReuseWindow,omitempty"`
}

// PoolConfig seeds a ResourcePool at startup (§4.2); realistic deployments
// register pools through the admin API instead, but a static seed list
// keeps single-binary/demo deployments simple.
type PoolConfig struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	MaxWorkers int               `yaml:"maxWorkers"`
	Labels     map[string]string `yaml:"labels,omitempty"`
}

// ArtifactConfig configures the artifact cache (C8).
type ArtifactConfig struct {
	CacheSize int `yaml:"cacheSize,omitempty"`
}

// Config is the top-level orchestrator process configuration.
type Config struct {
	Server      ServerConfig                        `yaml:"server"`
	Log         LogConfig                           `yaml:"log"`
	Queue       QueueConfig                         `yaml:"queue"`
	Scheduler   SchedulerConfig                     `yaml:"scheduler"`
	Coordinator CoordinatorConfig                    `yaml:"coordinator"`
	Artifact    ArtifactConfig                      `yaml:"artifact"`
	Workers     []workerfactory.WorkerConfiguration `yaml:"workers"`
	Pools       []PoolConfig                        `yaml:"pools,omitempty"`
}

// Default returns a Config usable as-is for a single local pool, matching
// the defaults each collaborator package already applies for a zero value.
func Default() Config {
	return Config{
		Server: ServerConfig{GRPCAddr: ":9090", AdminAddr: ":8080"},
		Log:    LogConfig{Level: "info", JSON: true},
		Queue:  QueueConfig{Strategy: string(queue.PriorityBased)},
		Scheduler: SchedulerConfig{
			DefaultStrategy: string(scheduler.RoundRobin),
		},
		Workers: []workerfactory.WorkerConfiguration{
			{PoolType: "local", WorkerBinary: "hodei-worker", ServerEndpoint: "localhost:9090"},
		},
	}
}

// Load reads and parses a YAML configuration file at path, filling unset
// fields from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperr.Wrap(apperr.KindValidation, "config.Load", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, apperr.Wrap(apperr.KindValidation, "config.Load", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first missing required field (§7: Validation kind).
func (c Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return apperr.Validation("config.Validate", "server.grpcAddr is required")
	}
	if len(c.Workers) == 0 {
		return apperr.Validation("config.Validate", "at least one worker configuration is required")
	}
	for _, w := range c.Workers {
		if w.PoolType == "" {
			return apperr.Validation("config.Validate", "worker configuration is missing poolType")
		}
	}
	return nil
}
