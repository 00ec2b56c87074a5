package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/config"
	"arena-server/internal/logging"
	"arena-server/internal/room"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *DB
	if cfg.Server.DBPath != "" {
		var err error
		if db, err = OpenDB(cfg.Server.DBPath); err != nil {
			return err
		}
		defer db.Close()
	}
	analytics := NewAnalytics(db, log.Named("analytics"))
	defer analytics.Stop()

	hub := NewHub(HubConfig{
		Tickets:       NewTickets(db, cfg.Server.TicketSecret, cfg.Server.TicketTTL, log),
		Analytics:     analytics,
		MaxConnsPerIP: cfg.Server.MaxConnsPerIP,
		PublicURL:     cfg.Server.PublicURL,
	}, log.Named("hub"))

	opts := room.OptionsFromConfig(cfg)
	opts.Observer = hub
	rooms := room.NewManager(ctx, opts, log.Named("room"))
	hub.SetRooms(rooms)
	go hub.Run(ctx)

	clientDir := resolveClientDir(cfg.Server.ClientDir)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           SetupRoutes(hub, clientDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Server.Addr), zap.String("client", clientDir))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	rooms.Wait()
	return nil
}

// resolveClientDir prefers the directory next to the executable, then the
// configured path as given.
func resolveClientDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return dir
}
