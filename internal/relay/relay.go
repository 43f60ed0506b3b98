// Package relay assembles the Hydronom relay: the in-memory engine, the
// audit recorder and every gateway in front of them.
package relay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/hydronom-io/hydronom/internal/pkg/admission"
	"github.com/hydronom-io/hydronom/internal/pkg/auth"
	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
	"github.com/hydronom-io/hydronom/internal/relay/core/service"
	"github.com/hydronom-io/hydronom/internal/relay/reaper"
	"github.com/hydronom-io/hydronom/internal/relay/server"
	grpcserver "github.com/hydronom-io/hydronom/internal/relay/server/grpc"
	httpserver "github.com/hydronom-io/hydronom/internal/relay/server/http"
	mqttserver "github.com/hydronom-io/hydronom/internal/relay/server/mqtt"
	"github.com/hydronom-io/hydronom/internal/relay/sink"
)

// RelayServer owns every running component of the relay.
type RelayServer struct {
	manager   *server.Manager
	recorder  *recorder.Recorder
	http      *httpserver.Server
	closeSink func() error
	log       logr.Logger
}

// NewRelayServer builds the relay. ctx bounds only the setup calls made
// against the audit sink.
func (cfg *Config) NewRelayServer(ctx context.Context) (*RelayServer, error) {
	log := cfg.Logger
	m := metrics.New()

	// 1. Audit sink and recorder
	auditSink, closeSink, err := sink.Open(ctx, cfg.AuditOptions, cfg.S3Options)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit sink: %w", err)
	}

	var grpcSrv *grpcserver.Server
	if cfg.GrpcOptions.Enabled {
		grpcSrv = grpcserver.NewServer(cfg.GrpcOptions, log)
	}

	rec := recorder.New(auditSink, recorder.Options{
		Capacity:      cfg.AuditOptions.Capacity,
		BatchSize:     cfg.AuditOptions.BatchSize,
		FlushInterval: cfg.AuditOptions.FlushInterval,
		MinBackoff:    cfg.AuditOptions.MinBackoff,
		MaxBackoff:    cfg.AuditOptions.MaxBackoff,
		Metrics:       m,
		Logger:        log,
		OnDegraded: func(degraded bool) {
			if grpcSrv != nil {
				grpcSrv.SetAuditDegraded(degraded)
			}
		},
	})
	if err := rec.Resume(ctx); err != nil {
		_ = closeSink()
		return nil, fmt.Errorf("failed to resume logical clock: %w", err)
	}

	// 2. Core engine
	svc := service.New(rec, service.Options{
		SubscriberBuffer: cfg.RelayOptions.SubscriberBuffer,
		PreRegistration:  commandTypes(cfg.RelayOptions.PreRegistration),
		Metrics:          m,
		Logger:           log,
	})

	// 3. Write-path guards
	authn, err := auth.New(auth.Options{Secret: cfg.AuthOptions.Secret, TTL: cfg.AuthOptions.TokenTTL})
	if err != nil {
		_ = closeSink()
		return nil, err
	}
	admit := admission.New(admission.Options{
		RPS:         cfg.AdmissionOptions.RPS,
		Burst:       cfg.AdmissionOptions.Burst,
		ClientRPS:   cfg.AdmissionOptions.ClientRPS,
		ClientBurst: cfg.AdmissionOptions.ClientBurst,
		ClientIdle:  cfg.AdmissionOptions.ClientIdle,
	})

	// 4. Gateways
	deps := httpserver.Deps{
		Relay:     svc,
		Auth:      authn,
		DevTokens: cfg.AuthOptions.DevTokens,
		Admission: admit,
		Metrics:   m,
		Logger:    log,
		Ready: func() error {
			if cfg.RelayOptions.StrictReadiness && rec.Degraded() {
				return core.ErrSinkDegraded
			}
			return nil
		},
	}
	if reader, ok := auditSink.(sink.Reader); ok {
		deps.Audit = reader
	}
	httpSrv := httpserver.NewServer(cfg.HttpOptions, deps)

	manager := server.NewManager(log, httpSrv, rec, reaper.New(svc, reaper.Options{
		Interval:    cfg.RelayOptions.ReapInterval,
		IdleTimeout: cfg.RelayOptions.IdleTimeout,
		Logger:      log,
	}, admit))
	if grpcSrv != nil {
		manager.Add(grpcSrv)
	}
	if cfg.MqttOptions.Enabled {
		client, err := InitializeMQTTClient(cfg.MqttOptions, log)
		if err != nil {
			_ = closeSink()
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		manager.Add(mqttserver.NewServer(client, cfg.MqttOptions, svc, log))
	}

	return &RelayServer{
		manager:   manager,
		recorder:  rec,
		http:      httpSrv,
		closeSink: closeSink,
		log:       log,
	}, nil
}

// Handler is the HTTP gateway's routed handler.
func (s *RelayServer) Handler() http.Handler {
	return s.http.Handler()
}

// Run blocks until ctx is done or a component fails. The recorder drains
// what it can before the sink is closed.
func (s *RelayServer) Run(ctx context.Context) error {
	s.log.Info("Starting Hydronom relay")
	err := s.manager.Start(ctx)

	if cerr := s.closeSink(); cerr != nil {
		s.log.Error(cerr, "failed to close audit sink")
	}
	if n := s.recorder.Pending(); n > 0 {
		s.log.Info("Audit records lost on shutdown", "pending", n)
	}
	s.log.Info("Hydronom relay stopped", "dropped", s.recorder.Dropped())
	return err
}
