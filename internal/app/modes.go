package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"converge/pkg/logging"
)

// syncTimeout bounds the wait for the initial cache sync before systemd is notified.
const syncTimeout = 2 * time.Minute

// runOperator runs the cluster cache, the controllers and the HTTP endpoints
// until ctx is cancelled or SIGINT/SIGTERM arrives.
//
// Once the cache has synced, systemd is notified with READY=1 (a no-op when
// not started by systemd). On shutdown controllers finish their running
// reconciliations before the cache stops.
func runOperator(ctx context.Context, config *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc := config.ConvergeConfig
	var servers []*httpServer
	defer func() {
		for _, s := range servers {
			s.shutdown()
		}
	}()
	if cc.MetricsAddr != "" {
		s, err := listen("metrics", cc.MetricsAddr, newMetricsHandler())
		if err != nil {
			return err
		}
		servers = append(servers, s)
	}
	if cc.HealthAddr != "" {
		s, err := listen("health", cc.HealthAddr, newHealthHandler(services.Manager))
		if err != nil {
			return err
		}
		servers = append(servers, s)
	}
	for _, s := range servers {
		go s.serve()
	}

	cacheCtx, stopCache := context.WithCancel(context.WithoutCancel(ctx))
	defer stopCache()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := services.Cluster.Start(cacheCtx); err != nil {
			return fmt.Errorf("cluster cache stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := services.Manager.Start(gctx)
		// Controllers are stopped; the cache can go.
		stopCache()
		return err
	})
	g.Go(func() error {
		notifyReady(gctx, services)
		return nil
	})

	logging.Info("Operator", "Running %d controllers. Press Ctrl+C to stop.", len(services.Definitions))
	err := g.Wait()
	logging.Info("Operator", "Stopped")
	return err
}

// notifyReady tells systemd the operator is ready once the cache has synced.
func notifyReady(ctx context.Context, services *Services) {
	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if !services.Cluster.WaitForSync(syncCtx) {
		if ctx.Err() == nil {
			logging.Warn("Operator", "Cluster cache did not sync within %s", syncTimeout)
		}
		return
	}
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	switch {
	case err != nil:
		logging.Warn("Operator", "Failed to notify systemd: %v", err)
	case sent:
		logging.Debug("Operator", "Notified systemd that the operator is ready")
	}
}
