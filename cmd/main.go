/*
Package main is the entry point for the conchat server.

It is responsible for loading configuration, initializing the global logging
system, opening the sqlite store, starting the TCP chat listener and the
secondary ops HTTP surface, and gracefully handling operating system
interrupt signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conchat/internal/app/auth"
	"conchat/internal/app/chat"
	"conchat/internal/app/ops"
	"conchat/internal/app/store"
	"conchat/internal/configs"
	"conchat/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("db_path", cfg.DBPath).
		Int("history_limit", cfg.HistoryLimit).
		Str("ops_addr", cfg.OpsAddr).
		Msg("Configuration loaded successfully")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logx.Fatal(err, "Failed to open store")
	}
	defer st.Close()
	logx.Info("Store opened and migrations applied successfully")

	registry, err := chat.NewRegistry(st)
	if err != nil {
		logx.Fatal(err, "Failed to initialize room registry")
	}

	authPool := auth.NewPool()
	defer authPool.Shutdown()

	dispatcher := chat.NewDispatcher(st, registry, authPool, cfg.HistoryLimit)

	chatAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", chatAddr)
	if err != nil {
		logx.Fatal(err, "Failed to bind chat listener")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go acceptLoop(ctx, listener, dispatcher)
	logx.Info(fmt.Sprintf("conchat server listening on %s", chatAddr))

	opsServer := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      ops.Router(cfg, st, registry),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("ops HTTP surface listening on http://%s", cfg.OpsAddr))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Ops server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	listener.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Ops server forced to shutdown")
	}

	registry.Shutdown()

	logx.Info("Server gracefully stopped.")
}

// acceptLoop accepts chat connections until ctx is canceled, servicing each
// on its own goroutine via Dispatcher.Serve.
func acceptLoop(ctx context.Context, listener net.Listener, dispatcher *chat.Dispatcher) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logx.Error(err, "Accept failed")
				return
			}
		}

		go dispatcher.Serve(conn)
	}
}
