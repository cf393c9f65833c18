//go:build linux

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

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bfix/wlink"
	"github.com/bfix/wlink/config"
	"github.com/bfix/wlink/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration", slog.String("err", err.Error()))
		os.Exit(2)
	}
	logger, closer := config.NewLogger(cfg.Log)
	defer closer.Close()

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	radio, err := wlink.NewLinuxRadio(wlink.LinuxRadioConfig{
		Interface: cfg.Interface,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("radio", slog.String("err", err.Error()))
		return 1
	}
	defer radio.Close()
	stack := wlink.NewHostStack(cfg.Interface)

	faults := make(chan error, 1)
	sys, err := wlink.Boot(ctx, wlink.BootConfig{
		Credentials: cfg.Credentials,
		Radio:       radio,
		Stack:       stack,
		Sockets:     cfg.Sessions,
		Supervisor:  cfg.Supervisor,
		Gate:        cfg.Gate,
		Logger:      logger,
		OnFatal: func(err error) {
			faults <- err
			stop()
		},
	})
	if err != nil {
		select {
		case err = <-faults:
		default:
		}
		logger.Error("network not ready", slog.String("err", err.Error()))
		return 1
	}

	ns, err := wlink.NewDiagNamespace(sys.Supervisor, stack, nil)
	if err != nil {
		logger.Error("namespace", slog.String("err", err.Error()))
		return 1
	}
	lst, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Error("listen", slog.String("err", err.Error()))
		return 1
	}
	logger.Info("serving 9p", slog.String("listen", cfg.Listen), slog.String("addr", sys.Address.String()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ns.ServeSessions(ctx, lst, sys.Sessions, wlink.SessionConfig{Logger: logger})
	})
	if len(cfg.Metrics) > 0 {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics, sys, stack)
		})
	}
	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("terminated", slog.String("err", err.Error()))
		return 1
	}
	select {
	case err = <-faults:
		logger.Error("radio fault", slog.String("err", err.Error()))
		return 1
	default:
	}
	return 0
}

func serveMetrics(ctx context.Context, addr string, sys *wlink.System, stack wlink.NetStack) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(sys.Supervisor, stack))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
