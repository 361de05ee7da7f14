// Package config loads the yaml config file, applies CHATDB_* environment
// overrides and parses command-line flags. Flags win over env, env wins
// over file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Metrics struct {
		Address string `yaml:"address"`
	} `yaml:"metrics"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Limits Limits `yaml:"limits"`
	Chat   struct {
		DefaultChannel string `yaml:"default_channel"`
	} `yaml:"chat"`
}

// Limits are the operational ceilings injected into repositories.
type Limits struct {
	// BatchGet is the store's batch-size limit; larger requests are chunked.
	BatchGet int `yaml:"batch_get"`
	// SearchResults caps SearchByToken output regardless of match volume.
	SearchResults int `yaml:"search_results"`
	// CandidateScan bounds how many raw index entries a search scan reads
	// before giving up on filling the result cap.
	CandidateScan int `yaml:"candidate_scan"`
	MaxContentLen int `yaml:"max_content_len"`
	MaxNameLen    int `yaml:"max_name_len"`
}

// Defaults returns a config with every field at its default value.
func Defaults() *Config {
	var c Config
	c.Storage.DBPath = "./.database"
	c.Metrics.Address = ":9090"
	c.Logging.Level = "info"
	c.Limits = Limits{
		BatchGet:      100,
		SearchResults: 50,
		CandidateScan: 500,
		MaxContentLen: 4000,
		MaxNameLen:    80,
	}
	c.Chat.DefaultChannel = "general"
	return &c
}

// Load reads and parses the yaml file at path on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays CHATDB_* environment variables onto cfg and reports
// whether any were used.
func ApplyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("CHATDB_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
		used = true
	}
	if v := os.Getenv("CHATDB_METRICS_ADDR"); v != "" {
		cfg.Metrics.Address = v
		used = true
	}
	if v := os.Getenv("CHATDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	if v := os.Getenv("CHATDB_DEFAULT_CHANNEL"); v != "" {
		cfg.Chat.DefaultChannel = v
		used = true
	}
	if v := os.Getenv("CHATDB_BATCH_GET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.BatchGet = n
			used = true
		}
	}
	if v := os.Getenv("CHATDB_SEARCH_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.SearchResults = n
			used = true
		}
	}
	return used
}

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	DB      string
	Config  string
	Metrics string
	Set     map[string]bool
}

// ParseFlags parses the command line once and records which flags were
// explicitly given so they can win over file and env values.
func ParseFlags() Flags {
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	metricsPtr := flag.String("metrics", "", "metrics/health listen address")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{DB: *dbPtr, Config: *cfgPtr, Metrics: *metricsPtr, Set: set}
}

// LoadEffective merges file, env and flags into the effective config plus a
// human-readable source summary for the banner.
func LoadEffective(fl Flags) (*Config, string, error) {
	cfg := Defaults()
	srcs := []string{}
	if c, err := Load(fl.Config); err == nil {
		cfg = c
		srcs = append(srcs, "config")
	} else if !os.IsNotExist(err) {
		return nil, "", err
	}
	if ApplyEnv(cfg) {
		srcs = append(srcs, "env")
	}
	if fl.Set["db"] {
		cfg.Storage.DBPath = fl.DB
	}
	if fl.Set["metrics"] {
		cfg.Metrics.Address = fl.Metrics
	}
	if len(fl.Set) > 0 {
		srcs = append(srcs, "flags")
	}
	if len(srcs) == 0 {
		srcs = append(srcs, "defaults")
	}
	return cfg, strings.Join(srcs, ", "), nil
}
