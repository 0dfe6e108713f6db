package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the Captain daemon's static configuration, loaded once at
// startup from a YAML file.
type Config struct {
	Addr                 string `yaml:"addr"`
	DataDir              string `yaml:"data_dir"`
	TickInterval         time.Duration `yaml:"-"`
	TickIntervalRaw      string `yaml:"tick_interval"`
	HeartbeatDeadline    time.Duration `yaml:"-"`
	HeartbeatDeadlineRaw string `yaml:"heartbeat_deadline"`
	SailorRPCTimeout     time.Duration `yaml:"-"`
	SailorRPCTimeoutRaw  string `yaml:"sailor_rpc_timeout"`
	RetentionTTL         time.Duration `yaml:"-"`
	RetentionTTLRaw      string `yaml:"retention_ttl"`
	Users                []User `yaml:"users"`
}

type User struct {
	UID         string `yaml:"uid"`
	Name        string `yaml:"name"`
	ChoresLimit int    `yaml:"chores_limit"`
	TimeLimit   string `yaml:"time_limit"`
	Notes       string `yaml:"notes"`
}

func defaults() Config {
	return Config{
		Addr:                 ":8080",
		DataDir:              "data",
		TickIntervalRaw:      "2s",
		HeartbeatDeadlineRaw: "60s",
		SailorRPCTimeoutRaw:  "5s",
		RetentionTTLRaw:      "24h",
	}
}

// Load reads a YAML config file, applying defaults for anything left unset.
func Load(path string) (*Config, error) {
	cfg := defaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.resolveDurations(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveDurations() error {
	var err error
	if c.TickInterval, err = time.ParseDuration(c.TickIntervalRaw); err != nil {
		return fmt.Errorf("tick_interval: %w", err)
	}
	if c.HeartbeatDeadline, err = time.ParseDuration(c.HeartbeatDeadlineRaw); err != nil {
		return fmt.Errorf("heartbeat_deadline: %w", err)
	}
	if c.SailorRPCTimeout, err = time.ParseDuration(c.SailorRPCTimeoutRaw); err != nil {
		return fmt.Errorf("sailor_rpc_timeout: %w", err)
	}
	if c.RetentionTTLRaw == "0" || c.RetentionTTLRaw == "" {
		c.RetentionTTL = 0
		return nil
	}
	if c.RetentionTTL, err = time.ParseDuration(c.RetentionTTLRaw); err != nil {
		return fmt.Errorf("retention_ttl: %w", err)
	}
	return nil
}
