// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kwserver is the server worker spawned by the server launcher. It
// listens on every port of a range and echoes back whatever it reads.
package kwserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultStatsInterval = 3 * time.Second
	readBufferSize       = 4096
)

type Config struct {
	// Listen address, empty for all interfaces
	Host      string
	BeginPort int
	EndPort   int

	StatsInterval time.Duration
}

type Stats struct {
	Connected int64
	Closed    int64
	Received  int64
}

type Server struct {
	config Config
	log    logrus.FieldLogger

	connected atomic.Int64
	closed    atomic.Int64
	received  atomic.Int64

	mu    sync.Mutex
	addrs []net.Addr
	ready chan struct{}
}

func New(config Config, log logrus.FieldLogger) (*Server, error) {
	if config.EndPort <= config.BeginPort {
		return nil, fmt.Errorf("empty port range [%d,%d)", config.BeginPort, config.EndPort)
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = DefaultStatsInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{config: config, log: log, ready: make(chan struct{})}, nil
}

func (s *Server) Stats() Stats {
	return Stats{
		Connected: s.connected.Load(),
		Closed:    s.closed.Load(),
		Received:  s.received.Load(),
	}
}

// Ready is closed once every port is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.Addr(nil), s.addrs...)
}

// Run listens on [BeginPort, EndPort) and serves until ctx is cancelled. A
// port that cannot be bound fails the whole run.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lc net.ListenConfig
	listeners := make([]net.Listener, 0, s.config.EndPort-s.config.BeginPort)
	for port := s.config.BeginPort; port < s.config.EndPort; port++ {
		addr := net.JoinHostPort(s.config.Host, strconv.Itoa(port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
	}

	s.mu.Lock()
	for _, ln := range listeners {
		s.addrs = append(s.addrs, ln.Addr())
	}
	s.mu.Unlock()
	close(s.ready)
	s.log.Infof("listening on %d ports [%d,%d)", len(listeners), s.config.BeginPort, s.config.EndPort)

	var wg sync.WaitGroup
	for _, ln := range listeners {
		wg.Add(1)
		go func(ln net.Listener) {
			defer wg.Done()
			s.accept(ctx, ln, &wg)
		}(ln)
	}

	ticker := time.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, ln := range listeners {
				ln.Close()
			}
			wg.Wait()
			s.log.Info("program exited")
			return nil
		case <-ticker.C:
			st := s.Stats()
			s.log.Infof("%d connected %d closed %d recved", st.Connected, st.Closed, st.Received)
		}
	}
}

func (s *Server) accept(ctx context.Context, ln net.Listener, wg *sync.WaitGroup) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnf("accept on %s: %s", ln.Addr(), err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.echo(ctx, conn)
		}()
	}
}

func (s *Server) echo(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	s.connected.Add(1)
	defer func() {
		s.connected.Add(-1)
		s.closed.Add(1)
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.received.Add(1)
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
