package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/sink"
	"github.com/hydronom-io/hydronom/pkg/options"
)

func testConfig(t *testing.T) *Config {
	audit := options.NewAuditOptions()
	audit.Sink = options.AuditSinkPebble
	audit.PebbleDir = filepath.Join(t.TempDir(), "audit")
	audit.FlushInterval = 10 * time.Millisecond

	httpOpts := options.NewHttpOptions()
	httpOpts.Addr = "127.0.0.1:0"
	grpcOpts := options.NewGrpcOptions()
	grpcOpts.Addr = "127.0.0.1:0"

	return &Config{
		HttpOptions:      httpOpts,
		GrpcOptions:      grpcOpts,
		MqttOptions:      options.NewMqttOptions(),
		S3Options:        options.NewS3Options(),
		RelayOptions:     options.NewRelayOptions(),
		AuditOptions:     audit,
		AuthOptions:      options.NewAuthOptions(),
		AdmissionOptions: options.NewAdmissionOptions(),
		Logger:           logr.Discard(),
	}
}

func TestRelayRecordsTelemetryAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	srv, err := cfg.NewRelayServer(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	body, err := json.Marshal(model.TelemetrySnapshot{
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		VehicleID: "boat-01",
		Vehicle:   model.VehicleInfo{Type: model.VehicleBoat},
	})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/telemetry", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Eventually(t, func() bool { return srv.recorder.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}

	p, err := sink.OpenPebble(cfg.AuditOptions.PebbleDir)
	require.NoError(t, err)
	last, err := p.LastLogicalTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LogicalTime(1), last)
	require.NoError(t, p.Close())

	// The logical clock resumes after the persisted record.
	srv, err = cfg.NewRelayServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LogicalTime(1), srv.recorder.LastLogicalTime())
	require.NoError(t, srv.closeSink())
}

func TestNewRelayServerRejectsUnknownSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditOptions.Sink = "tape"

	_, err := cfg.NewRelayServer(context.Background())
	assert.ErrorContains(t, err, "unknown audit sink")
}

func TestCommandTypes(t *testing.T) {
	assert.Equal(t, []model.CommandType{"PING", "SET_RUDDER"}, commandTypes([]string{"PING", "SET_RUDDER"}))
	assert.Empty(t, commandTypes(nil))
}
