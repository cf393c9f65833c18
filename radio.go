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

package wlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// Error codes
var (
	ErrBusy            = errors.New("radio busy")
	ErrInvalidConfig   = errors.New("invalid station configuration")
	ErrNotStarted      = errors.New("radio not started")
	ErrScanUnsupported = errors.New("scan not supported by radio")
)

//----------------------------------------------------------------------

// StaState is the station state as reported by the radio.
type StaState int

// Station states
const (
	StaInvalid StaState = iota
	StaStarted
	StaConnected
	StaDisconnected
	StaStopped
)

// String returns a human-readable station state.
func (s StaState) String() string {
	switch s {
	case StaStarted:
		return "started"
	case StaConnected:
		return "connected"
	case StaDisconnected:
		return "disconnected"
	case StaStopped:
		return "stopped"
	}
	return "invalid"
}

//----------------------------------------------------------------------

// Radio is the exclusive handle to a wireless interface running in
// station mode. Only one task (the Supervisor) may issue commands.
type Radio interface {
	// StaState reports the current station state.
	StaState() StaState
	// IsStarted reports if the radio subsystem is running.
	IsStarted() (bool, error)
	// SetConfig applies a station configuration.
	SetConfig(cfg ClientConfig) error
	// Start the radio in station mode.
	Start(ctx context.Context) error
	// Scan for access points.
	Scan(ctx context.Context, cfg ScanConfig) ([]AccessPoint, error)
	// Connect to the configured network.
	Connect(ctx context.Context) error
	// WaitDisconnect blocks until the station is disconnected.
	WaitDisconnect(ctx context.Context) error
}

//----------------------------------------------------------------------

// Credentials of the network to join. Fixed at build time.
type Credentials struct {
	SSID       string
	Passphrase string
}

// ClientConfig returns the station configuration for the credentials.
func (c Credentials) ClientConfig() ClientConfig {
	return ClientConfig{
		SSID:     c.SSID,
		Password: c.Passphrase,
	}
}

// ClientConfig is a station-mode configuration.
type ClientConfig struct {
	SSID     string
	Password string
}

// Open returns true for networks without passphrase.
func (cfg ClientConfig) Open() bool {
	return len(cfg.Password) == 0
}

// Validate the configuration against 802.11 limits.
func (cfg ClientConfig) Validate() error {
	if n := len(cfg.SSID); n == 0 || n > 32 {
		return fmt.Errorf("%w: ssid length %d", ErrInvalidConfig, n)
	}
	switch n := len(cfg.Password); {
	case n == 0:
	case n >= 8 && n <= 63:
	case n == 64 && isHex(cfg.Password):
	default:
		return fmt.Errorf("%w: passphrase length %d", ErrInvalidConfig, n)
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

//----------------------------------------------------------------------

// DefaultScanMax is the default cap on scan results.
const DefaultScanMax = 10

// ScanConfig for an active scan
type ScanConfig struct {
	Max int // max. number of results
}

// AccessPoint found during a scan
type AccessPoint struct {
	SSID    string
	BSSID   net.HardwareAddr
	Channel int
	Signal  int // dBm (0 if unknown)
	Auth    string
}

// LogValue implements slog.LogValuer.
func (ap AccessPoint) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("ssid", ap.SSID),
		slog.String("bssid", ap.BSSID.String()),
		slog.Int("channel", ap.Channel),
		slog.Int("signal", ap.Signal),
		slog.String("auth", ap.Auth),
	)
}

//----------------------------------------------------------------------

// Fault is a failure to configure or start the radio.
type Fault struct {
	Op  string
	Err error
}

// Error returns the fault as string.
func (f *Fault) Error() string {
	return f.Op + ": " + f.Err.Error()
}

// Unwrap returns the underlying error.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Retryable returns true if the fault is transient.
func (f *Fault) Retryable() bool {
	return errors.Is(f.Err, ErrBusy)
}
