package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ============================================================================
// HTTP Server
// ============================================================================
// One listener serves the feedback websocket and two webhooks so automation
// tools (Tasker, Home Assistant, a browser) can act like the headset:
//
//   POST /press             one logical button press (goes through the decider)
//   POST /trigger?button=N  trigger button N directly
//   GET  /ws                feedback feed
// ============================================================================

// registerWebhooks installs the press/trigger handlers on mux.
func registerWebhooks(mux *http.ServeMux, events chan<- Event, logger *slog.Logger) {
	mux.HandleFunc("/press", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeWebhookResult(w, enqueueEvent(events, ButtonPressed{Source: "http"}), logger)
	})

	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n, err := strconv.Atoi(r.URL.Query().Get("button"))
		if err != nil {
			http.Error(w, "button must be 1 or 2", http.StatusBadRequest)
			return
		}
		if err := validateButton(n); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeWebhookResult(w, enqueueEvent(events, TriggerButton{Button: n}), logger)
	})
}

func writeWebhookResult(w http.ResponseWriter, err error, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		logger.Warn("webhook rejected", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(IPCResponse{Status: "error", Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(IPCResponse{Status: "ok"})
}

// runHTTPServer serves handler on port and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("HTTP server listening", "port", port)

	errCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
