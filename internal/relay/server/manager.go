package server

import (
	"context"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Server defines the common interface for every long-running component
// (gateways, recorder, reaper).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all servers. The first one to fail
// cancels the others.
type Manager struct {
	servers []Server
	log     logr.Logger
}

func NewManager(logger logr.Logger, servers ...Server) *Manager {
	return &Manager{servers: servers, log: logger}
}

// Add registers another server. It must be called before Start.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	m.log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
