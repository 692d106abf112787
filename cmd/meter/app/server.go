package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfmetrics/powermeter/internal/display"
	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/telemetry"
)

// statusResponse is the /status payload: host health next to the live
// measurement state.
type statusResponse struct {
	Host        telemetry.Status `json:"host"`
	Meter       meter.Stats      `json:"meter"`
	Reading     meter.Reading    `json:"reading"`
	LiveClients int              `json:"liveClients"`
}

// newServer builds the HTTP surface: Prometheus metrics on /metrics, a
// health probe on /healthz, a combined status snapshot on /status and the
// live reading websocket on /live.
func newServer(cfg HTTPConfig, m *meter.Meter, live *display.LiveSink, reporter *telemetry.StatusReporter, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		reading := m.LastReading()
		reading.Window = nil // the trace goes over the websocket, not polling

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(statusResponse{
			Host:        reporter.Snapshot(),
			Meter:       m.Stats(),
			Reading:     reading,
			LiveClients: live.Clients(),
		})
		if err != nil {
			logger.Warn(fmt.Sprintf("failed to write status response: %s", err.Error()))
		}
	})

	mux.HandleFunc("/live", live.HandleWebSocket)

	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
