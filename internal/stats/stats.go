/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats implements daemon.StatsRecorder once, parameterized by
// output format, replacing the original's three near-duplicate stats
// functions (plain display, CSV, and syslog) with a single code path
// (spec §9).
package stats

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/daemon"
	"github.com/ptpd1/ptpd/protocol"
	"github.com/ptpd1/ptpd/servo"
)

// Format selects how RecordSample renders each sample.
type Format int

// Supported formats.
const (
	// FormatNone discards samples (transitions are still logged).
	FormatNone Format = iota
	// FormatDisplay renders a redrawn single-row table, the spec §9
	// analogue of the original's non-CSV `displayStats` line.
	FormatDisplay
	// FormatCSV appends one comma-separated line per sample, header
	// written once on the first call.
	FormatCSV
)

var csvHeader = []string{
	"state", "one way delay", "offset from master", "drift (ppb)", "servo state",
}

// Recorder is a daemon.StatsRecorder that logs state transitions via
// logrus (colored by state) and renders samples in the configured
// Format, optionally also exporting them as Prometheus gauges.
type Recorder struct {
	mu          sync.Mutex
	out         io.Writer
	format      Format
	csvPrinted  bool
	metrics     *promMetrics
	portState   daemon.State
}

// New builds a Recorder that writes samples to out in the given format.
// Pass a non-nil registry to additionally register Prometheus gauges
// updated on every RecordSample (spec §9's optional metrics exporter).
func New(out io.Writer, format Format, registry *prometheus.Registry) *Recorder {
	r := &Recorder{out: out, format: format}
	if registry != nil {
		r.metrics = newPromMetrics(registry)
	}
	return r
}

var _ daemon.StatsRecorder = (*Recorder)(nil)

// RecordTransition logs a state change, color-coding the before/after
// state the way the pack's CLI tools use fatih/color for status output.
func (r *Recorder) RecordTransition(from, to daemon.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.transitions.WithLabelValues(from.String(), to.String()).Inc()
		r.metrics.state.Set(float64(to))
	}
	r.portState = to
	log.Infof("daemon: state %s -> %s", colorState(from), colorState(to))
}

// RecordSample renders one offset/delay/drift sample per spec §9's
// "stats at every transition" supplement.
func (r *Recorder) RecordSample(offset, owd protocol.TimeInternal, driftPPB int64, state servo.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.offsetSeconds.Set(offset.Duration().Seconds())
		r.metrics.owdSeconds.Set(owd.Duration().Seconds())
		r.metrics.driftPPB.Set(float64(driftPPB))
		r.metrics.servoState.Set(float64(state))
	}

	switch r.format {
	case FormatCSV:
		r.recordCSV(offset, owd, driftPPB, state)
	case FormatDisplay:
		r.recordDisplay(offset, owd, driftPPB, state)
	case FormatNone:
	}
}

func (r *Recorder) recordCSV(offset, owd protocol.TimeInternal, driftPPB int64, state servo.State) {
	if !r.csvPrinted {
		fmt.Fprintln(r.out, strings.Join(csvHeader, ","))
		r.csvPrinted = true
	}
	fmt.Fprintf(r.out, "%s,%s,%s,%d,%s\n",
		r.portState, owd.Duration(), offset.Duration(), driftPPB, state)
}

func (r *Recorder) recordDisplay(offset, owd protocol.TimeInternal, driftPPB int64, state servo.State) {
	table := tablewriter.NewTable(r.out)
	table.Header(csvHeader)
	table.Append([]string{
		colorState(r.portState),
		owd.Duration().String(),
		offset.Duration().String(),
		fmt.Sprintf("%d", driftPPB),
		colorServoState(state),
	})
	table.Render()
}

func colorState(s daemon.State) string {
	switch s {
	case daemon.StateFaulty:
		return color.RedString(s.String())
	case daemon.StateSlave, daemon.StateMaster:
		return color.GreenString(s.String())
	case daemon.StateUncalibrated, daemon.StatePreMaster, daemon.StatePassive:
		return color.YellowString(s.String())
	default:
		return s.String()
	}
}

func colorServoState(s servo.State) string {
	if s == servo.StateJump {
		return color.YellowString(s.String())
	}
	return color.GreenString(s.String())
}

type promMetrics struct {
	transitions   *prometheus.CounterVec
	state         prometheus.Gauge
	offsetSeconds prometheus.Gauge
	owdSeconds    prometheus.Gauge
	driftPPB      prometheus.Gauge
	servoState    prometheus.Gauge
}

func newPromMetrics(registry *prometheus.Registry) *promMetrics {
	m := &promMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptpd_state_transitions_total",
			Help: "Count of port state transitions, labeled by from/to state name.",
		}, []string{"from", "to"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpd_port_state",
			Help: "Current port state, as its daemon.State ordinal.",
		}),
		offsetSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpd_offset_from_master_seconds",
			Help: "Most recent filtered offset from master, in seconds.",
		}),
		owdSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpd_one_way_delay_seconds",
			Help: "Most recent filtered one-way delay, in seconds.",
		}),
		driftPPB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpd_observed_drift_ppb",
			Help: "Servo's current observed clock drift, in parts per billion.",
		}),
		servoState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpd_servo_state",
			Help: "Most recent servo.State ordinal returned by Sample (1=jump, 2=locked).",
		}),
	}
	registry.MustRegister(m.transitions, m.state, m.offsetSeconds, m.owdSeconds, m.driftPPB, m.servoState)
	return m
}
