package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/promptcraft-lab/promptops/internal/eventlog"
)

// A standalone endpoint for testing the webhook event sink. Point the
// webhook sink URL at http://127.0.0.1:8099/events and every metric event
// the chat service emits shows up here as a log line.

func main() {
	addr := flag.String("addr", ":8099", "listen address for events receiver")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", handleEvent)
	mux.HandleFunc("/", handleEvent)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("events receiver listening on %s (POST JSON to /events)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("receiver error: %v", err)
	}
}

func handleEvent(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	var ev eventlog.Event
	if err := json.Unmarshal(body, &ev); err == nil && ev.ChatID != "" {
		log.Printf("received metric event: chat_id=%s action=%s in_scope=%t attack=%t latency_ms=%.2f",
			ev.ChatID, ev.Action, ev.IsInScope, ev.IsAttack, ev.LatencyMS)
	} else {
		log.Printf("received event: path=%s content-type=%s len=%d\n%s", r.URL.Path, r.Header.Get("Content-Type"), len(body), string(body))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
