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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	syscall "golang.org/x/sys/unix"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ptpd1/ptpd/daemon"
	"github.com/ptpd1/ptpd/internal/config"
	"github.com/ptpd1/ptpd/internal/stats"
)

func main() {
	cfg := config.DefaultConfig()

	var configFile string
	flag.StringVar(&configFile, "config", "", "optional YAML config file overlaying unset flags")
	flag.StringVar(&cfg.Iface, "interface", cfg.Iface, "network interface to run the port on")
	flag.StringVar(&cfg.SubdomainName, "subdomain", cfg.SubdomainName, "PTP subdomain name")
	flag.BoolVar(&cfg.SlaveOnly, "slaveonly", cfg.SlaveOnly, "never transition to MASTER")
	flag.BoolVar(&cfg.NoAdjust, "noadjust", cfg.NoAdjust, "compute offsets but never discipline the clock")
	flag.BoolVar(&cfg.NoResetClock, "noresetclock", cfg.NoResetClock, "slew instead of stepping on large initial offsets")
	flag.StringVar(&cfg.TimeSource, "timesource", cfg.TimeSource, "time source: system, nic, both, system-assisted, system-kernel-hw, system-kernel-sw, nic-only")
	flag.Int64Var(&cfg.AP, "ap", cfg.AP, "PI servo proportional attenuation coefficient (a_p)")
	flag.Int64Var(&cfg.AI, "ai", cfg.AI, "PI servo integral attenuation coefficient (a_i)")
	flag.DurationVar(&cfg.InboundLatency, "inbound-latency", cfg.InboundLatency, "fixed inbound latency correction")
	flag.DurationVar(&cfg.OutboundLatency, "outbound-latency", cfg.OutboundLatency, "fixed outbound latency correction")
	flag.BoolVar(&cfg.DisplayStats, "displaystats", cfg.DisplayStats, "print a live stats table to stdout")
	flag.BoolVar(&cfg.CSVStats, "csvstats", cfg.CSVStats, "print stats as CSV to stdout")
	flag.StringVar(&cfg.UnicastAddress, "unicast", cfg.UnicastAddress, "unicast peer address (disables multicast)")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level: debug, info, warning, error")
	flag.IntVar(&cfg.MaxForeignRecords, "maxforeignrecords", cfg.MaxForeignRecords, "foreign master record table capacity")
	flag.StringVar(&cfg.PrometheusListenAddress, "metrics-address", cfg.PrometheusListenAddress, "if set, serve Prometheus /metrics on this address")

	var filterStiffness int
	flag.IntVar(&filterStiffness, "filterstiffness", 0, "one-way-delay filter stiffness")
	flag.Parse()
	if filterStiffness != 0 {
		cfg.FilterStiffness = int16(filterStiffness)
	}

	if configFile != "" {
		if err := cfg.ReadFile(configFile); err != nil {
			log.Fatal(err)
		}
		// Parse again so flags given on the command line take precedence
		// over values from the file.
		flag.Parse()
		if filterStiffness != 0 {
			cfg.FilterStiffness = int16(filterStiffness)
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("ptpd: unrecognized log level: %v", cfg.LogLevel)
	}

	timeSource, err := config.ParseTimeSource(cfg.TimeSource)
	if err != nil {
		log.Fatal(err)
	}

	var registry *prometheus.Registry
	if cfg.PrometheusListenAddress != "" {
		registry = prometheus.NewRegistry()
		go serveMetrics(cfg.PrometheusListenAddress, registry)
	}

	format := stats.FormatNone
	switch {
	case cfg.CSVStats:
		format = stats.FormatCSV
	case cfg.DisplayStats:
		format = stats.FormatDisplay
	}
	var recorder daemon.StatsRecorder
	if format != stats.FormatNone || registry != nil {
		recorder = stats.New(os.Stdout, format, registry)
	}

	port, err := daemon.New(daemon.Config{
		Iface:             cfg.Iface,
		SubdomainName:     cfg.SubdomainName,
		UnicastAddress:    cfg.UnicastAddress,
		StampMode:         cfg.StampMode(),
		TimeSource:        timeSource,
		NoAdjust:          cfg.NoAdjust,
		NoResetClock:      cfg.NoResetClock,
		SlaveOnly:         cfg.SlaveOnly,
		AP:                cfg.AP,
		AI:                cfg.AI,
		FilterStiffness:   cfg.FilterStiffness,
		InboundLatency:    cfg.InboundLatency,
		OutboundLatency:   cfg.OutboundLatency,
		MaxForeignRecords: cfg.MaxForeignRecords,
		Stats:             recorder,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

	ctx, cancel := context.WithCancel(context.Background())

	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- port.Run(ctx) }()

	select {
	case sig := <-sigStop:
		log.Warningf("ptpd: received %v, shutting down", sig)
		cancel()
		<-done
	case err := <-done:
		cancel()
		if err != nil {
			log.Fatal(err)
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Infof("ptpd: serving metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("ptpd: metrics server stopped: %v", err)
	}
}
