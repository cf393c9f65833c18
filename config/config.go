//----------------------------------------------------------------------
// This file is part of wlink.
// Copyright (C) 2024-present Bernd Fix   >Y<
//
// wlink is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// wlink is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

// Package config loads the settings of the host program from a file
// and WLINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bfix/wlink"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix for environment overrides (WLINK_WIFI_SSID, ...)
const EnvPrefix = "WLINK"

// Config of the host program
type Config struct {
	Credentials wlink.Credentials
	Interface   string
	Supervisor  wlink.SupervisorConfig
	Gate        wlink.GateConfig
	Listen      string // 9p listen address
	Sessions    int    // max. concurrent 9p sessions
	Metrics     string // prometheus listen address ("" to disable)
	Log         LogConfig
}

// LogConfig selects level and destination of log output.
type LogConfig struct {
	Level      slog.Level
	File       string // "" for stderr
	MaxSizeMB  int
	MaxBackups int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wifi.ssid", "")
	v.SetDefault("wifi.passphrase", "")
	v.SetDefault("wifi.interface", "wlan0")
	v.SetDefault("supervisor.cooldown", wlink.DefaultCooldown)
	v.SetDefault("supervisor.scan_max", wlink.DefaultScanMax)
	v.SetDefault("supervisor.max_start_retries", wlink.DefaultMaxStartRetries)
	v.SetDefault("gate.interval", wlink.DefaultPollInterval)
	v.SetDefault("gate.timeout", time.Duration(0))
	v.SetDefault("ninep.listen", ":5640")
	v.SetDefault("ninep.sessions", wlink.DefaultSockets)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file (optional) and environment.
func Load(path string) (*Config, error) {
	v := New()
	if len(path) > 0 {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Credentials: wlink.Credentials{
			SSID:       v.GetString("wifi.ssid"),
			Passphrase: v.GetString("wifi.passphrase"),
		},
		Interface: v.GetString("wifi.interface"),
		Supervisor: wlink.SupervisorConfig{
			Cooldown:        v.GetDuration("supervisor.cooldown"),
			ScanMax:         v.GetInt("supervisor.scan_max"),
			MaxStartRetries: v.GetInt("supervisor.max_start_retries"),
		},
		Gate: wlink.GateConfig{
			Interval: v.GetDuration("gate.interval"),
			Timeout:  v.GetDuration("gate.timeout"),
		},
		Listen:   v.GetString("ninep.listen"),
		Sessions: v.GetInt("ninep.sessions"),
		Metrics:  v.GetString("metrics.listen"),
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
		},
	}
	if err := cfg.Log.Level.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate the configuration.
func (cfg *Config) Validate() error {
	if len(cfg.Credentials.SSID) == 0 {
		return wlink.ErrNoCredentials
	}
	if err := cfg.Credentials.ClientConfig().Validate(); err != nil {
		return err
	}
	if len(cfg.Interface) == 0 {
		return errors.New("wifi.interface: required")
	}
	if cfg.Sessions <= 0 {
		return fmt.Errorf("ninep.sessions: must be positive, got %d", cfg.Sessions)
	}
	if cfg.Gate.Timeout < 0 {
		return fmt.Errorf("gate.timeout: negative duration %s", cfg.Gate.Timeout)
	}
	return nil
}

// NewLogger creates the program logger. The closer must be called on
// exit when logging to a file.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer) {
	var w io.Writer = os.Stderr
	var c io.Closer = io.NopCloser(nil)
	if len(cfg.File) > 0 {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w, c = lj, lj
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level})), c
}
