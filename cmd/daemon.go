package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/desertthunder/smartsync/internal/server"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const lockFileName = "smartsync.lock"

// acquireLock takes the single-instance lock in the data directory. The returned function
// releases it.
func (r *Runner) acquireLock() (func(), error) {
	dir := r.config.Storage.DataDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock held at %s)", shared.ErrAlreadyRunning, lockPath)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release daemon lock", "error", err)
		}
	}, nil
}

func (r *Runner) listenAddr(cmd *cli.Command) string {
	if addr := cmd.String("addr"); addr != "" {
		return addr
	}
	return net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
}

// Daemon runs the refresh scheduler and the HTTP API until the context is cancelled.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	release, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	if err := r.wire(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.scheduler.Run(gctx)
	})

	if !cmd.Bool("no-api") {
		router := server.NewBasicRouter()
		router.Use(server.Recover(r.logger), server.Logging(r.logger))
		server.NewAPI(r.lists, r.ledger, r.engine, r.scheduler, r.clock, r.logger).Register(router)

		addr := r.listenAddr(cmd)
		g.Go(func() error {
			return server.Serve(gctx, addr, router, r.logger)
		})
	}

	r.logger.Info("smartsync daemon started", "interval", r.config.Scheduler.Interval(), "storage", r.config.Storage.Backend)
	err = g.Wait()
	r.logger.Info("smartsync daemon stopped")
	return err
}
