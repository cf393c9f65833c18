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

// Package metrics exports supervisor and stack state to Prometheus.
package metrics

import (
	"github.com/bfix/wlink"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wlink"

// SnapshotSource provides supervisor statistics.
type SnapshotSource interface {
	Snapshot() wlink.Snapshot
}

var states = []wlink.ConnState{
	wlink.NotStarted, wlink.Started, wlink.Connected, wlink.Disconnected,
}

// Collector reads the supervisor snapshot and the stack on every scrape.
type Collector struct {
	src   SnapshotSource
	stack wlink.NetStack

	state       *prometheus.Desc
	starts      *prometheus.Desc
	connects    *prometheus.Desc
	failures    *prometheus.Desc
	disconnects *prometheus.Desc
	scans       *prometheus.Desc
	aps         *prometheus.Desc
	linkUp      *prometheus.Desc
	configured  *prometheus.Desc
}

// NewCollector for a supervisor and its stack.
func NewCollector(src SnapshotSource, stack wlink.NetStack) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src:         src,
		stack:       stack,
		state:       desc("connection_state", "Last observed connection state.", "state"),
		starts:      desc("radio_starts_total", "Successful radio starts."),
		connects:    desc("connects_total", "Successful station connects."),
		failures:    desc("connect_failures_total", "Failed connect attempts."),
		disconnects: desc("disconnects_total", "Observed disconnects."),
		scans:       desc("scans_total", "Completed diagnostic scans."),
		aps:         desc("scan_access_points", "Access points seen by the last scan."),
		linkUp:      desc("link_up", "Data link state."),
		configured:  desc("ipv4_configured", "IPv4 address assigned."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.starts
	ch <- c.connects
	ch <- c.failures
	ch <- c.disconnects
	ch <- c.scans
	ch <- c.aps
	ch <- c.linkUp
	ch <- c.configured
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Snapshot()
	for _, st := range states {
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, boolValue(s.State == st), st.String())
	}
	ch <- prometheus.MustNewConstMetric(c.starts, prometheus.CounterValue, float64(s.Starts))
	ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(s.Connects))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures))
	ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.CounterValue, float64(s.Disconnects))
	ch <- prometheus.MustNewConstMetric(c.scans, prometheus.CounterValue, float64(s.Scans))
	ch <- prometheus.MustNewConstMetric(c.aps, prometheus.GaugeValue, float64(len(s.LastScan)))
	ch <- prometheus.MustNewConstMetric(c.linkUp, prometheus.GaugeValue, boolValue(c.stack.LinkUp()))
	_, ok := c.stack.IPv4Config()
	ch <- prometheus.MustNewConstMetric(c.configured, prometheus.GaugeValue, boolValue(ok))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
