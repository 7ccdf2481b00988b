// Package server implements the control-channel accept loop and RPC
// dispatch of spec.md §3/§4: one ServerDaemon per process, one Session
// per accepted connection, grounded on the teacher's internal/server
// accept-loop/conn split (server.go + conn.go), adapted from a fixed
// XDR/RPC program dispatch to a named JSON method dispatch table.
package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/easyshare-go/easyshare/internal/discovery"
	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/internal/session"
	"github.com/easyshare-go/easyshare/internal/sharing"
	"github.com/easyshare-go/easyshare/pkg/protocol"
)

const version = "1.0.0"

// Options configures one ServerDaemon instance.
type Options struct {
	Address      string
	Port         int
	DiscoverPort int
	Name         string
	Password     string // may be a bcrypt hash or a plaintext value
	Rexec        bool
	TLSConfig    *tls.Config // nil disables SSL
	IdleTimeout  time.Duration
}

// ServerDaemon owns the control-channel listener, the session
// registry, and the optional discovery daemon.
type ServerDaemon struct {
	opts     Options
	sharings *sharing.Registry
	sessions *session.Registry
	log      *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	disco    *discovery.Daemon
}

func New(opts Options, sharings *sharing.Registry, log *logger.Logger) *ServerDaemon {
	return &ServerDaemon{
		opts:     opts,
		sharings: sharings,
		sessions: session.NewRegistry(),
		log:      log.With("server"),
	}
}

// Serve binds the control-channel listener (optionally TLS-wrapped),
// starts the discovery daemon if configured, and accepts connections
// until the listener is closed.
func (d *ServerDaemon) Serve() error {
	addr := fmt.Sprintf("%s:%d", d.opts.Address, d.opts.Port)

	var ln net.Listener
	var err error
	if d.opts.TLSConfig != nil {
		ln, err = tls.Listen("tcp", addr, d.opts.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	disco, err := discovery.NewDaemon(d.opts.DiscoverPort, d.describe, d.log)
	if err != nil {
		ln.Close()
		return fmt.Errorf("start discovery daemon: %w", err)
	}
	if disco != nil {
		d.mu.Lock()
		d.disco = disco
		d.mu.Unlock()
		go disco.Serve()
	}

	go d.sweepIdleSessions()

	d.log.Info("listening on %s (discovery on port %d)", addr, d.opts.DiscoverPort)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		c := d.newConn(conn)
		go c.serve()
	}
}

// Stop closes the control listener and discovery daemon, unblocking
// Serve and Serve loops of any accepted connections' Accept calls.
func (d *ServerDaemon) Stop() error {
	d.mu.Lock()
	ln := d.listener
	disco := d.disco
	d.mu.Unlock()

	if disco != nil {
		disco.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (d *ServerDaemon) describe() protocol.ServerDescriptor {
	return protocol.ServerDescriptor{
		Name:         d.opts.Name,
		Address:      d.opts.Address,
		Port:         d.opts.Port,
		DiscoverPort: d.opts.DiscoverPort,
		SSL:          d.opts.TLSConfig != nil,
		Auth:         d.opts.Password != "",
		Rexec:        d.opts.Rexec,
		Version:      version,
		Sharings:     d.sharings.List(),
	}
}

// sweepIdleSessions tears down sessions idle for longer than
// IdleTimeout, per spec.md §3's inactivity-timeout destruction rule.
func (d *ServerDaemon) sweepIdleSessions() {
	if d.opts.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(d.opts.IdleTimeout / 4)
	defer ticker.Stop()
	for range ticker.C {
		for _, s := range d.sessions.Snapshot() {
			if s.IdleSince() > d.opts.IdleTimeout {
				d.log.Debug("session %s idle for %s, tearing down", s.ID, s.IdleSince())
				d.sessions.Remove(s.ID)
			}
		}
	}
}
