// Package main runs the fieldmap workspace server on its own, without the
// CLI wrapper. Deployments that only need the HTTP surface build this.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"

	"fieldmap/internal/config"
	"fieldmap/internal/history"
	"fieldmap/internal/server"
)

func main() {
	// A local .env is optional; missing files are ignored.
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		logger.Error("open history store", "path", cfg.HistoryDB, "error", err)
		os.Exit(1)
	}
	defer hist.Close() //nolint:errcheck

	srv, err := server.New(context.Background(), cfg, hist, logger)
	if err != nil {
		logger.Error("configure server", "error", err)
		os.Exit(1)
	}

	logger.Info("try it", "curl", "curl http://"+curlHostForListenAddr(cfg.ListenAddr)+"/healthz")
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// curlHostForListenAddr turns a listen address into something curl accepts:
// wildcard and empty hosts become localhost.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("localhost", port)
	}
	return net.JoinHostPort(host, port)
}
