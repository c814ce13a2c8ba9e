package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"bookied/statemgr"
)

func daemon(ctx context.Context, mgr *statemgr.StateManager, conf config) {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reRegisterLoop(ctx, mgr, conf)
	})

	g.Go(func() error {
		return runAdminServer(ctx, mgr, conf)
	})

	if err := g.Wait(); err != nil && err != http.ErrServerClosed && !errors.Is(err, context.Canceled) {
		log.Fatalf("Fatal error: %v", err)
	}
}

// reRegisterLoop periodically refreshes the bookie's registration in
// the metadata store. Backends with leases (etcd) do not need this;
// the DynamoDB backend does, since a marker written by a dead bookie
// would otherwise live forever.
func reRegisterLoop(ctx context.Context, mgr *statemgr.StateManager, conf config) error {
	if conf.reRegisterInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(conf.reRegisterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("returning ctx.Done() error in re-register loop: %w", ctx.Err())
		case <-ticker.C:
			if mgr.IsShuttingDown() {
				return nil
			}

			if err := mgr.RegisterBookie(true).Wait(ctx); err != nil {
				log.Printf("Periodic re-registration failed: %v", err)
			}
		}
	}
}
