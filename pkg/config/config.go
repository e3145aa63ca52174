// Package config loads the monitor settings file.
package config

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

// Defaults applied when the settings file omits a value.
const (
	DefaultInterval   = 10.0 // seconds
	DefaultBackupDays = 30
	DefaultRescan     = 600.0 // seconds
	DefaultMinPolls   = 10
)

// Email holds the outbound SMTP account used for alerts.
type Email struct {
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
}

// SensorSettings is the per-sensor block keyed by
// "sensor.<channel>.<type>" (or "channel<N>.<type>") in the settings
// file.
type SensorSettings struct {
	Name     string   `yaml:"name"`
	MaxThres *float64 `yaml:"max_thres"`
	MinThres *float64 `yaml:"min_thres"`
	Units    string   `yaml:"units"`
	Interval float64  `yaml:"interval"` // seconds, 0 means fleet default
}

// Settings is the full settings file.
type Settings struct {
	Interval   float64 `yaml:"interval"`    // default poll interval, seconds
	DataDir    string  `yaml:"datadir"`     // CSV log directory
	BackupDays int     `yaml:"backup_days"` // log retention window, days
	Rescan     float64 `yaml:"rescan"`      // bus rescan period, seconds
	MinPolls   int     `yaml:"min_polls"`   // warm-up floor before alerting

	SendTo   []string `yaml:"send_to"`
	SendFrom *Email   `yaml:"send_from"`

	Socket string `yaml:"socket"` // telemetry push address, e.g. ws://host:20486/
	Broker string `yaml:"broker"` // MQTT broker, e.g. tcp://host:1883
	Topic  string `yaml:"topic"`  // MQTT topic prefix

	Sensors map[string]SensorSettings `yaml:"sensors"`
}

// Load reads and parses the settings file at path. A missing file is
// not an error: an empty settings set is returned so the fleet keeps
// running and a later rescan can pick the file up.
func Load(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Settings file does not exist, nothing to load: %s", path)
		return withDefaults(&Settings{}), nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	var s Settings
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	return withDefaults(&s), nil
}

func withDefaults(s *Settings) *Settings {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.BackupDays <= 0 {
		s.BackupDays = DefaultBackupDays
	}
	if s.Rescan <= 0 {
		s.Rescan = DefaultRescan
	}
	if s.MinPolls <= 0 {
		s.MinPolls = DefaultMinPolls
	}
	if s.Sensors == nil {
		s.Sensors = make(map[string]SensorSettings)
	}
	return s
}
