package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hydronom-io/hydronom/internal/pkg/auth"
	"github.com/hydronom-io/hydronom/internal/pkg/filter"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/fanout"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Origins are enforced by the cors middleware and by the token, not here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Frame is one websocket message. A "gap" frame tells the client how many
// records it missed because it read too slowly.
type Frame struct {
	Type    string        `json:"type"`
	Record  *model.Record `json:"record,omitempty"`
	Dropped uint64        `json:"dropped,omitempty"`
}

const (
	frameRecord = "record"
	frameGap    = "gap"
)

func (h *handlers) streamTelemetry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := filter.Compile(q.Get("filter"))
	if err != nil {
		writeErr(w, core.InvalidRequest(err), nil)
		return
	}

	name := r.RemoteAddr
	if id, err := h.deps.Auth.Verify(auth.TokenFromRequest(r)); err == nil {
		name = id.Subject + "@" + r.RemoteAddr
	}

	sub, err := h.deps.Relay.OpenSubscription(q.Get("vehicleId"), fanout.SubscribeOptions{Name: name})
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.V(1).Info("websocket upgrade failed", "err", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readPump(conn, cancel)

	log := h.log.WithValues("vehicle", sub.VehicleID(), "subscriber", name, "token", sub.Token())
	log.V(1).Info("subscription opened", "filter", f.String())
	if err := h.writePump(ctx, conn, sub, f); err != nil {
		log.V(1).Info("subscription closed", "reason", err.Error())
	}
}

// readPump discards client messages and cancels the stream when the peer
// goes away.
func (h *handlers) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *handlers) writePump(ctx context.Context, conn *websocket.Conn, sub *fanout.Subscription, f *filter.Filter) error {
	records := make(chan model.Record)
	errc := make(chan error, 1)
	go func() {
		for {
			rec, err := sub.Next(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var reported uint64
	for {
		select {
		case rec := <-records:
			if d := sub.Dropped(); d > reported {
				if err := writeFrame(conn, Frame{Type: frameGap, Dropped: d - reported}); err != nil {
					return err
				}
				reported = d
			}
			if !f.Match(rec) {
				continue
			}
			if err := writeFrame(conn, Frame{Type: frameRecord, Record: &rec}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case err := <-errc:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return err
		}
	}
}

func writeFrame(conn *websocket.Conn, fr Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(fr)
}
