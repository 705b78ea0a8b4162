package gateway

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("testns")

	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
	m.ObserveTurn("ok", time.Now().Add(-time.Second))
	m.ChunksSentTotal.WithLabelValues("audio").Inc()
	m.AudioBytesTotal.Add(1280)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		`testns_connections_total 1`,
		`testns_connections_active 1`,
		`testns_turns_total{outcome="ok"} 1`,
		`testns_chunks_sent_total{kind="audio"} 1`,
		`testns_audio_bytes_total 1280`,
		"testns_turn_duration_seconds_bucket",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetricsDefaultNamespace(t *testing.T) {
	m := NewMetrics("")
	m.ConnectionsTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "voicepipe_connections_total") {
		t.Error("default namespace not applied")
	}
}
