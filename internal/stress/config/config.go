package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Borislavv/atomic-shared/pkg/gc"
)

const (
	configPath      = "stress.cfg.yaml"
	configPathLocal = "stress.cfg.local.yaml"
)

// Config is the stress-driver configuration tree.
type Config struct {
	Stress Stress `yaml:"stress" mapstructure:"stress"`
}

type Stress struct {
	Enabled   bool      `yaml:"enabled" mapstructure:"enabled"`
	Threads   int       `yaml:"threads" mapstructure:"threads"`
	Slots     int       `yaml:"slots" mapstructure:"slots"`
	Passes    int       `yaml:"passes" mapstructure:"passes"`
	Mode      string    `yaml:"mode" mapstructure:"mode"`           // "atomic" or "mutex"
	Allocator string    `yaml:"allocator" mapstructure:"allocator"` // "heap" or "mmap"
	Workloads Workloads `yaml:"workloads" mapstructure:"workloads"`
	Report    Report    `yaml:"report" mapstructure:"report"`
	Server    Server    `yaml:"server" mapstructure:"server"`
	ForceGC   gc.Config `yaml:"force_gc" mapstructure:"force_gc"`
	Liveness  Liveness  `yaml:"liveness" mapstructure:"liveness"`
}

// Workloads toggles the four worker loops.
type Workloads struct {
	Assign   bool `yaml:"assign" mapstructure:"assign"`
	Reassign bool `yaml:"reassign" mapstructure:"reassign"`
	ReadSum  bool `yaml:"read_sum" mapstructure:"read_sum"`
	CAS      bool `yaml:"cas" mapstructure:"cas"`
}

type Report struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// File, when set, receives a YAML run summary after verification.
	File string `yaml:"file" mapstructure:"file"`
}

type Server struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Name    string `yaml:"name" mapstructure:"name"`
	Port    string `yaml:"port" mapstructure:"port"`
}

type Liveness struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

const (
	ModeAtomic = "atomic"
	ModeMutex  = "mutex"
)

// Load reads the config: .env first (optional, for one-off overrides),
// then the local yaml override when present, then the committed yaml.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	path := os.Getenv("STRESS_CONFIG")
	if path == "" {
		if _, err := os.Stat(configPathLocal); err == nil {
			path = configPathLocal
		} else {
			path = configPath
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Stress
	if s.Threads <= 0 {
		s.Threads = 8
	}
	if s.Slots <= 0 {
		s.Slots = 32
	}
	if s.Passes <= 0 {
		s.Passes = 10_000
	}
	if s.Mode == "" {
		s.Mode = ModeAtomic
	}
	if s.Report.Interval <= 0 {
		s.Report.Interval = 5 * time.Second
	}
	if s.Liveness.Interval <= 0 {
		s.Liveness.Interval = time.Second
	}
	if s.Server.Name == "" {
		s.Server.Name = "atomic-shared-stress"
	}
	if s.Server.Port == "" {
		s.Server.Port = "8020"
	}
	if !s.Workloads.Assign && !s.Workloads.Reassign && !s.Workloads.ReadSum && !s.Workloads.CAS {
		s.Workloads = Workloads{Assign: true, Reassign: true, ReadSum: true, CAS: true}
	}
}

func (c *Config) validate() error {
	switch c.Stress.Mode {
	case ModeAtomic, ModeMutex:
	default:
		return errors.New("config: stress.mode must be \"atomic\" or \"mutex\"")
	}
	return nil
}
