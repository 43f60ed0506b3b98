package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/hydronom-io/hydronom/internal/pkg/auth"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	deps Deps
	log  logr.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) readyz(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Ready != nil {
		if err := h.deps.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) devToken(w http.ResponseWriter, r *http.Request) {
	token, exp, err := h.deps.Auth.Issue(r.URL.Query().Get("user"))
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"token": token, "expires_at": exp})
}

// decode reads a JSON body. Any failure is an invalid request.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return core.InvalidRequest(fmt.Errorf("decode body: %w", err))
	}
	return nil
}

func (h *handlers) postTelemetry(w http.ResponseWriter, r *http.Request) {
	var snap model.TelemetrySnapshot
	if err := decode(w, r, &snap); err != nil {
		writeErr(w, err, nil)
		return
	}
	applied, err := h.deps.Relay.PostTelemetry(r.Context(), snap)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]bool{"applied": applied})
}

func (h *handlers) getState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Relay.GetState(mux.Vars(r)["vehicleId"])
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusOK, snap)
}

func (h *handlers) listVehicles(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, h.deps.Relay.ListVehicles())
}

func (h *handlers) postCommand(w http.ResponseWriter, r *http.Request) {
	var cmd model.Command
	if err := decode(w, r, &cmd); err != nil {
		writeErr(w, err, nil)
		return
	}
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		cmd.IssuedBy = id.Subject
	}

	res, err := h.deps.Relay.PostCommand(r.Context(), cmd)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusAccepted, res)
}

func (h *handlers) postMission(w http.ResponseWriter, r *http.Request) {
	var m model.Mission
	if err := decode(w, r, &m); err != nil {
		writeErr(w, err, nil)
		return
	}
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		m.CreatedBy = id.Subject
	}

	created, err := h.deps.Relay.PostMission(r.Context(), m)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusCreated, created)
}

func (h *handlers) getMission(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Relay.GetMission(mux.Vars(r)["taskId"])
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *handlers) postMissionAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := h.deps.Relay.PostMissionAction(r.Context(), vars["taskId"], vars["action"])
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeOK(w, http.StatusOK, m)
}

func (h *handlers) audit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "the configured audit sink cannot be read back", nil)
		return
	}

	q := r.URL.Query()
	since, err := parseUint(q.Get("since"), 0)
	if err != nil {
		writeErr(w, core.InvalidRequest(fmt.Errorf("since: %w", err)), nil)
		return
	}
	limit, err := parseUint(q.Get("limit"), 100)
	if err != nil || limit == 0 || limit > 1000 {
		writeErr(w, core.InvalidRequest(fmt.Errorf("limit must be between 1 and 1000")), nil)
		return
	}

	recs, err := h.deps.Audit.Range(r.Context(), model.LogicalTime(since), int(limit))
	if err != nil {
		h.log.Error(err, "audit read failed")
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "audit log unavailable", nil)
		return
	}
	writeOK(w, http.StatusOK, recs)
}

func parseUint(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
