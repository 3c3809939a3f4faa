// Package config loads the process configuration from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chanwatch/chanwatch/internal/duration"
)

// Config holds every tunable of the observer process. Interval-valued fields
// are kept in their compact string form ("1m", "5m") and parsed on demand so
// the console can print and update them as written.
type Config struct {
	Token           string `yaml:"token"`
	Database        string `yaml:"database"`
	Autosave        string `yaml:"autosave"`
	ConsoleHost     string `yaml:"console_host"`
	ConsolePort     int    `yaml:"console_port"`
	ConsoleHello    string `yaml:"console_hello"`
	ConsoleTimeout  string `yaml:"console_timeout"`
	MeetingInterval string `yaml:"meeting_interval"`
	MeetingUserc    int    `yaml:"meeting_userc"`
	CommentCooldown string `yaml:"comment_cooldown"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:        "database.json",
		Autosave:        "1m",
		ConsoleHost:     "localhost",
		ConsolePort:     4123,
		ConsoleHello:    "Channel presence observer",
		ConsoleTimeout:  "1m",
		MeetingInterval: "5m",
		MeetingUserc:    2,
		CommentCooldown: "1m",
	}
}

// Load reads a YAML config file over the defaults. A missing file is an
// error, as are unknown keys.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config not found: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if _, err := cfg.durations(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Durations holds the parsed interval fields.
type Durations struct {
	Autosave        time.Duration
	ConsoleTimeout  time.Duration
	MeetingInterval time.Duration
	CommentCooldown time.Duration
}

// Intervals parses every interval-valued field. Load has already validated
// them, so errors only occur after a console "set" of a bad value.
func (c Config) Intervals() (Durations, error) {
	return c.durations()
}

func (c Config) durations() (Durations, error) {
	var d Durations
	var err error
	for _, field := range []struct {
		name  string
		value string
		out   *time.Duration
	}{
		{"autosave", c.Autosave, &d.Autosave},
		{"console_timeout", c.ConsoleTimeout, &d.ConsoleTimeout},
		{"meeting_interval", c.MeetingInterval, &d.MeetingInterval},
		{"comment_cooldown", c.CommentCooldown, &d.CommentCooldown},
	} {
		if *field.out, err = duration.Parse(field.value); err != nil {
			return d, fmt.Errorf("config %s: %w", field.name, err)
		}
	}
	return d, nil
}

// ConsoleAddr returns the host:port the console listens on.
func (c Config) ConsoleAddr() string {
	return fmt.Sprintf("%s:%d", c.ConsoleHost, c.ConsolePort)
}
