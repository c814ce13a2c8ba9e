package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookied/statemgr"
)

type stateResponse struct {
	BookieID           string `json:"bookie_id"`
	Running            bool   `json:"running"`
	ShuttingDown       bool   `json:"shutting_down"`
	ReadOnly           bool   `json:"read_only"`
	Registered         bool   `json:"registered"`
	HighPriorityWrites bool   `json:"high_priority_writes"`
	ServerStatus       int    `json:"server_status"`
}

func snapshotState(mgr *statemgr.StateManager) stateResponse {
	return stateResponse{
		BookieID:           mgr.BookieID(),
		Running:            mgr.IsRunning(),
		ShuttingDown:       mgr.IsShuttingDown(),
		ReadOnly:           mgr.IsReadOnly(),
		Registered:         mgr.IsRegistered(),
		HighPriorityWrites: mgr.IsAvailableForHighPriorityWrites(),
		ServerStatus:       mgr.StatusGauge(),
	}
}

// runAdminServer serves the health snapshot, the Prometheus metrics
// and the administrative transition triggers.
func runAdminServer(ctx context.Context, mgr *statemgr.StateManager, conf config) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := snapshotState(mgr)

		status := http.StatusOK
		if !resp.Running || resp.ShuttingDown {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/readonly", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		log.Printf("Read-only transition requested via admin server")
		mgr.TransitionToReadOnlyMode()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/writable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		log.Printf("Writable transition requested via admin server")
		mgr.TransitionToWritableMode()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    conf.listenAddress,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) // graceful shutdown
	}()

	log.Printf("Listening on %s", srv.Addr)
	return srv.ListenAndServe()
}
