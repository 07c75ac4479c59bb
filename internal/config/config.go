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

// Package config carries the daemon's CLI surface as a flat struct, with
// an optional YAML overlay for values the command line doesn't set.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/ptpd1/ptpd/netio"
	"github.com/ptpd1/ptpd/timesource"
)

// Config is the full set of daemon run options.
type Config struct {
	Iface             string        `yaml:"iface"`
	SubdomainName     string        `yaml:"subdomain_name"`
	SlaveOnly         bool          `yaml:"slave_only"`
	NoAdjust          bool          `yaml:"no_adjust"`
	NoResetClock      bool          `yaml:"no_reset_clock"`
	TimeSource        string        `yaml:"time_source"`
	AP                int64         `yaml:"ap"`
	AI                int64         `yaml:"ai"`
	FilterStiffness   int16         `yaml:"filter_stiffness"`
	InboundLatency    time.Duration `yaml:"inbound_latency"`
	OutboundLatency   time.Duration `yaml:"outbound_latency"`
	DisplayStats      bool          `yaml:"display_stats"`
	CSVStats          bool          `yaml:"csv_stats"`
	UnicastAddress    string        `yaml:"unicast_address"`
	LogLevel          string        `yaml:"log_level"`
	MaxForeignRecords int           `yaml:"max_foreign_records"`

	// PrometheusListenAddress, left empty, disables the /metrics
	// exporter; set (e.g. ":8888") to enable it alongside display/CSV
	// stats.
	PrometheusListenAddress string `yaml:"prometheus_listen_address"`
}

// DefaultConfig returns the spec's canonical defaults, mirroring the
// zero-value-means-"use the default" convention `daemon.Config.setDefaults`
// applies on top of this at `New` time.
func DefaultConfig() *Config {
	return &Config{
		SubdomainName:     "_DFLT",
		TimeSource:        timesource.System.String(),
		AP:                10,
		AI:                1000,
		LogLevel:          "info",
		MaxForeignRecords: 5,
	}
}

// ReadFile overlays cfg with values from a YAML file at path. Fields
// present in the file overwrite cfg's current values, whatever set them;
// fields absent from the file are left as cfg already had them.
func (c *Config) ReadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// Validate reports the first configuration error found, per spec §6's
// constraints on AP/AI and the time-source name.
func (c *Config) Validate() error {
	if c.Iface == "" {
		return fmt.Errorf("config: iface must be set")
	}
	if c.AP <= 0 {
		return fmt.Errorf("config: ap must be positive")
	}
	if c.AI <= 0 {
		return fmt.Errorf("config: ai must be positive")
	}
	if _, err := ParseTimeSource(c.TimeSource); err != nil {
		return err
	}
	if c.MaxForeignRecords <= 0 {
		return fmt.Errorf("config: max-foreign-records must be positive")
	}
	return nil
}

// ParseTimeSource maps the CLI's --timesource string onto a
// timesource.Variant, the way the original maps a small set of command
// line tokens onto its clock_source enum.
func ParseTimeSource(s string) (timesource.Variant, error) {
	switch strings.ToLower(s) {
	case "system":
		return timesource.System, nil
	case "nic":
		return timesource.Nic, nil
	case "both":
		return timesource.Both, nil
	case "system-assisted", "systemassisted":
		return timesource.SystemAssisted, nil
	case "system-kernel-hw", "systemkernelhw":
		return timesource.SystemKernelHW, nil
	case "system-kernel-sw", "systemkernelsw":
		return timesource.SystemKernelSW, nil
	case "nic-only", "niconly":
		return timesource.NicOnly, nil
	default:
		return 0, fmt.Errorf("config: unknown time source %q", s)
	}
}

// StampMode derives the netio timestamping mode implied by the
// configured time source. Variants that discipline or read the NIC
// clock (Nic/Both/NicOnly/SystemAssisted/SystemKernelHW) need the NIC's
// hardware timestamps; SystemKernelSW asks for kernel software
// timestamps only; plain System takes no kernel timestamp at all and
// falls back to a userspace time.Now at send/receive.
func (c *Config) StampMode() netio.StampMode {
	switch strings.ToLower(c.TimeSource) {
	case "nic", "both", "nic-only", "niconly", "system-assisted", "systemassisted", "system-kernel-hw", "systemkernelhw":
		return netio.StampHardware
	case "system-kernel-sw", "systemkernelsw":
		return netio.StampSoftware
	default:
		return netio.StampNone
	}
}
