package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydronom-io/hydronom/internal/pkg/admission"
	"github.com/hydronom-io/hydronom/internal/pkg/auth"
	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core/fanout"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/sink"
	"github.com/hydronom-io/hydronom/pkg/options"
)

// Relay is the part of the relay service the gateway calls.
type Relay interface {
	PostTelemetry(ctx context.Context, snap model.TelemetrySnapshot) (bool, error)
	PostCommand(ctx context.Context, cmd model.Command) (model.CommandResult, error)
	PostMission(ctx context.Context, m model.Mission) (model.Mission, error)
	PostMissionAction(ctx context.Context, taskID, action string) (model.Mission, error)
	GetState(vehicleID string) (model.TelemetrySnapshot, error)
	GetMission(taskID string) (model.Mission, error)
	ListVehicles() []model.VehicleSummary
	OpenSubscription(vehicleID string, opts fanout.SubscribeOptions) (*fanout.Subscription, error)
}

// Deps are the collaborators of the HTTP gateway. Auth and Admission are
// required; the rest may be nil.
type Deps struct {
	Relay     Relay
	Auth      *auth.Authenticator
	DevTokens bool
	Admission *admission.Controller
	// Audit serves GET /api/audit when the sink supports reading back.
	Audit   sink.Reader
	Metrics *metrics.Metrics
	// Ready reports why the relay cannot take traffic, or nil.
	Ready  func() error
	Logger logr.Logger
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	log     logr.Logger
}

func NewServer(opts *options.HttpOptions, deps Deps) *Server {
	log := deps.Logger.WithName("http")
	h := &handlers{deps: deps, log: log}

	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           cors(opts.AllowedOrigins, accessLog(log, h.routes())),
			ReadHeaderTimeout: opts.Timeout,
			ReadTimeout:       opts.Timeout,
			WriteTimeout:      opts.Timeout,
		},
		options: opts,
		log:     log,
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	s.log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (h *handlers) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	if h.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.deps.Metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if h.deps.DevTokens {
		r.HandleFunc("/auth/dev-token", h.devToken).Methods(http.MethodGet)
	}

	authn := h.deps.Auth.Middleware(deny)
	admit := h.deps.Admission.Middleware(deny)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/telemetry", admit(http.HandlerFunc(h.postTelemetry))).Methods(http.MethodPost)
	api.HandleFunc("/state/{vehicleId}", h.getState).Methods(http.MethodGet)
	api.HandleFunc("/vehicles", h.listVehicles).Methods(http.MethodGet)
	api.Handle("/commands", authn(admit(http.HandlerFunc(h.postCommand)))).Methods(http.MethodPost)
	api.Handle("/missions", authn(admit(http.HandlerFunc(h.postMission)))).Methods(http.MethodPost)
	api.HandleFunc("/missions/{taskId}", h.getMission).Methods(http.MethodGet)
	api.Handle("/missions/{taskId}/{action}", authn(admit(http.HandlerFunc(h.postMissionAction)))).Methods(http.MethodPost)
	api.Handle("/audit", authn(http.HandlerFunc(h.audit))).Methods(http.MethodGet)

	r.HandleFunc("/ws/telemetry", h.streamTelemetry).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path, nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed on "+r.URL.Path, nil)
	})
	return r
}
