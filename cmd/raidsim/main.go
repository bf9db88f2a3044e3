// Package main - raidsim formats a simulated RAID group, injects faults, and
// runs host reads through the raid engine.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NVIDIA/raidio/cmn"
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/stats"
	"github.com/NVIDIA/raidio/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// set by the linker
var (
	version = "1.0"
	build   string
)

var flags struct {
	config   string
	scenario string
	metrics  string
	hold     bool
	verbose  int
	help     bool
}

const helpMsg = `Examples:
	raidsim -scenario=degraded.yaml                          - run a scenario with the default config
	raidsim -config=raidio.json -scenario=degraded.yaml      - run with engine config from a JSON file
	raidsim -scenario=verify.yaml -metrics=:9100 -hold       - serve prometheus metrics until interrupted
`

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&flags.config, "config", "", "engine config (JSON); defaults when empty")
	fs.StringVar(&flags.scenario, "scenario", "", "scenario (YAML)")
	fs.StringVar(&flags.metrics, "metrics", "", "listen address for the prometheus endpoint")
	fs.BoolVar(&flags.hold, "hold", false, "keep serving metrics after the run, until interrupted")
	fs.IntVar(&flags.verbose, "v", -1, "log verbosity (overrides config)")
	fs.BoolVar(&flags.help, "h", false, "print usage and exit")
	fs.Parse(os.Args[1:])

	if flags.help || flags.scenario == "" {
		fs.PrintDefaults()
		fmt.Print(helpMsg)
		os.Exit(0)
	}
	if err := _main(); err != nil {
		nlog.Errorln(err)
		nlog.Flush(nlog.ActExit)
		os.Exit(1)
	}
	nlog.Flush(nlog.ActExit)
}

func _main() error {
	cfg := cmn.DefaultConfig()
	if flags.config != "" {
		var err error
		if cfg, err = cmn.LoadConfig(flags.config); err != nil {
			return err
		}
	}
	if flags.verbose >= 0 {
		cfg.Log.Verbosity = flags.verbose
	}
	if err := nlog.Setup(cfg.Log.Dir, cfg.Log.ToStderr, cfg.Log.Verbosity); err != nil {
		return err
	}
	nlog.SetTitle(fmt.Sprintf("raidsim %s (build %s)", version, build))

	sc, err := loadScenario(flags.scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(&cfg.Trace, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.Shutdown(sctx, tp); err != nil {
			nlog.Errorln("trace shutdown:", err)
		}
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tracker := stats.NewTracker(reg)

	var srv *http.Server
	if flags.metrics != "" {
		srv = serveMetrics(flags.metrics, reg)
		defer srv.Close()
	}

	var provider trace.TracerProvider // stays nil (no-op) when tracing is disabled
	if tp != nil {
		provider = tp
	}
	rep, err := run(ctx, sc, cfg, tracker, provider)
	if rep != nil {
		fmt.Println(rep)
		rep.Stats.Log()
	}
	if err != nil {
		return err
	}
	if srv != nil && flags.hold {
		nlog.Infof("serving metrics at %s, interrupt to exit", flags.metrics)
		<-ctx.Done()
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), "metrics"))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nlog.Errorln("metrics:", err)
		}
	}()
	return srv
}
