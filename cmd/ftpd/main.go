// Command ftpd is a deliberately thin wrapper around package server: argument
// parsing and process bring-up only, no protocol logic of its own (§1).
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-ftpd/xcryptftp/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		port     = flag.Int("p", 2121, "port to listen on (1..65535)")
		httpPort = flag.Int("w", 0, "http port for the web browser subsystem (accepted, not implemented)")
		dir      = flag.String("d", ".", "root directory to serve")
		help     = flag.Bool("h", false, "show this help message")
		maxSes   = flag.Int("max-sessions", server.DefaultMaxSessions, "maximum concurrent sessions")
	)
	flag.Parse()

	if *help {
		flag.Usage()
		return 0
	}

	if *port < 1 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "ftpd: invalid port %d\n", *port)
		return 1
	}
	if *httpPort != 0 {
		slog.Warn("the -w web browser subsystem is out of scope for this build; flag accepted and ignored")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	driver, err := server.NewFSDriver(*dir)
	if err != nil {
		logger.Error("failed to create filesystem driver", "root", *dir, "error", err)
		return 1
	}

	var psk [32]byte
	if _, err := rand.Read(psk[:]); err != nil {
		logger.Error("failed to generate session PSK", "error", err)
		return 1
	}

	metrics := server.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	srv, err := server.NewServer(fmt.Sprintf(":%d", *port),
		server.WithDriver(driver),
		server.WithPSK(psk),
		server.WithMaxSessions(*maxSes),
		server.WithLogger(logger),
		server.WithMetricsCollector(metrics),
	)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("ftpd listening", "port", *port, "root", *dir)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", "error", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && err != server.ErrServerClosed {
			logger.Error("server exited", "error", err)
			return 1
		}
		return 0
	}
}
