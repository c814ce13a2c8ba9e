package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bookied/statemgr"
)

func main() {
	conf := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rm, cleanup, err := newRegistrationManager(ctx, conf)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to build registration manager: %w", err))
	}
	defer cleanup()

	mgr, err := statemgr.New(statemgr.Config{
		AdvertisedAddress:    conf.advertisedAddress,
		Port:                 conf.port,
		StatusDirs:           conf.statusDirs,
		PersistStatusEnabled: conf.persistStatus,
		ReadOnlyModeEnabled:  conf.readOnlyEnabled,
		RegistrationTimeout:  conf.registrationTimeout,
	}, rm)
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Close()

	// The shutdown handler must be wired before any operation that
	// can hit a fatal path.
	mgr.SetShutdownHandler(&processShutdown{mgr: mgr, cleanup: cleanup})

	mgr.InitState()
	registerMetrics(mgr)

	if err := mgr.RegisterBookie(true).Wait(ctx); err != nil {
		log.Fatal(fmt.Errorf("initial registration failed: %w", err))
	}
	log.Printf("Bookie %s registered with cluster %s (read-only: %v)", mgr.BookieID(), conf.clusterName, mgr.IsReadOnly())

	go func() {
		<-ctx.Done()
		mgr.ForceToShuttingDown()
	}()

	daemon(ctx, mgr, conf)
}

// processShutdown terminates the process when the state manager hits a
// fatal condition.
type processShutdown struct {
	mgr     *statemgr.StateManager
	cleanup func()
}

func (p *processShutdown) Shutdown(exitCode int) {
	log.Printf("Shutting down bookie with exit code %d", exitCode)
	p.mgr.ForceToShuttingDown()
	p.cleanup()
	os.Exit(exitCode)
}
