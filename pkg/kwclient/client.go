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

// Package kwclient is the client worker spawned by the client launcher. It
// holds a fixed number of TCP connections spread over a server port range,
// keeps them alive with heartbeats and optionally ping-pongs a payload.
package kwclient

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
	"golang.org/x/time/rate"
)

const (
	DefaultDialTimeout       = 3 * time.Second
	DefaultReconnectInterval = 3 * time.Second
	DefaultStatsInterval     = 3 * time.Second

	writeTimeout   = 3 * time.Second
	readBufferSize = 4096
)

// Heartbeat is sent on every connected connection each heartbeat interval.
// The trailing NUL is part of the message.
var Heartbeat = []byte("heartbeat\x00")

type Config struct {
	Host      string
	BeginPort int
	EndPort   int
	Conns     int

	// Zero disables heartbeats
	HeartbeatInterval time.Duration

	// Payload echoed back and forth once every connection is up, zero disables
	SendSize int

	// Dials per second, zero for no limit
	ConnectRate int

	DialTimeout       time.Duration
	ReconnectInterval time.Duration
	StatsInterval     time.Duration
}

type Stats struct {
	Connected int64
	Sent      int64
	Received  int64
	Retry     int64
}

type Client struct {
	config  Config
	log     logrus.FieldLogger
	limiter *rate.Limiter
	payload []byte

	connected atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
	retry     atomic.Int64
	firstRun  atomic.Bool

	mu    sync.RWMutex
	conns []*conn
}

type conn struct {
	net.Conn
	writeMu sync.Mutex
}

func (c *conn) send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.Write(msg)
	return err
}

func New(config Config, log logrus.FieldLogger) (*Client, error) {
	if config.EndPort <= config.BeginPort {
		return nil, fmt.Errorf("empty port range [%d,%d)", config.BeginPort, config.EndPort)
	}
	if config.Conns < 0 {
		return nil, fmt.Errorf("negative connection count %d", config.Conns)
	}
	if config.SendSize < 0 {
		return nil, fmt.Errorf("negative send size %d", config.SendSize)
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = DefaultStatsInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	limit := rate.Inf
	if config.ConnectRate > 0 {
		limit = rate.Limit(config.ConnectRate)
	}
	return &Client{
		config:  config,
		log:     log,
		limiter: rate.NewLimiter(limit, max(config.ConnectRate, 1)),
		payload: make([]byte, config.SendSize),
		conns:   make([]*conn, config.Conns),
	}, nil
}

func (c *Client) Stats() Stats {
	return Stats{
		Connected: c.connected.Load(),
		Sent:      c.sent.Load(),
		Received:  c.received.Load(),
		Retry:     c.retry.Load(),
	}
}

// Port returns the server port connection i is pinned to.
func (c *Client) Port(i int) int {
	return c.config.BeginPort + i%(c.config.EndPort-c.config.BeginPort)
}

// Run keeps Conns connections open until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.log.Infof("creating %d connections", c.config.Conns)

	var wg sync.WaitGroup
	for i := 0; i < c.config.Conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.keepConnected(ctx, i)
		}(i)
	}

	var heartbeat <-chan time.Time
	if c.config.HeartbeatInterval > 0 {
		ticker := time.NewTicker(c.config.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	stats := time.NewTicker(c.config.StatsInterval)
	defer stats.Stop()

	var lastSent int64
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			c.log.Info("program exited")
			return nil
		case <-heartbeat:
			c.broadcast(Heartbeat)
			c.log.Debug("send heartbeat")
		case <-stats.C:
			st := c.Stats()
			qps := float64(st.Sent-lastSent) / c.config.StatsInterval.Seconds()
			lastSent = st.Sent
			c.log.Infof("%.0f qps %d msgs sended %d connected %d disconnected %d retry %d recved",
				qps, st.Sent, st.Connected, int64(c.config.Conns)-st.Connected, st.Retry, st.Received)
		}
	}
}

func (c *Client) keepConnected(ctx context.Context, i int) {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.Port(i)))
	dialer := net.Dialer{Timeout: c.config.DialTimeout}

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		nc, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			c.serve(ctx, i, &conn{Conn: nc})
		} else if ctx.Err() == nil {
			c.log.WithField("conn", i).Debugf("dial %s: %s", addr, err)
		}
		if ctx.Err() != nil {
			return
		}
		c.retry.Add(1)

		timer := time.NewTimer(c.config.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) serve(ctx context.Context, i int, cn *conn) {
	stop := context.AfterFunc(ctx, func() { cn.Close() })
	defer stop()
	defer cn.Close()

	c.mu.Lock()
	c.conns[i] = cn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conns[i] = nil
		c.mu.Unlock()
	}()

	connected := c.connected.Add(1)
	defer c.connected.Add(-1)
	if connected%10000 == 0 || connected == int64(c.config.Conns) {
		c.log.Infof("%d connection connected", connected)
	}
	if c.config.SendSize > 0 && connected == int64(c.config.Conns) && c.firstRun.CompareAndSwap(false, true) {
		go func() {
			n := c.broadcast(c.payload)
			c.log.Infof("first run %d msgs sended", n)
		}()
	}

	buf := make([]byte, readBufferSize)
	pending := 0
	for {
		n, err := cn.Read(buf)
		pending += n
		switch {
		case c.config.SendSize > 0 && pending >= c.config.SendSize:
			pending = 0
			if werr := cn.send(c.payload); werr != nil {
				return
			}
			c.sent.Add(1)
			c.received.Add(1)
		case c.config.HeartbeatInterval > 0 && pending >= len(Heartbeat):
			pending = 0
			c.received.Add(1)
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				c.log.WithField("conn", i).Debugf("connection closed: %s", err)
			}
			return
		}
	}
}

// broadcast writes msg on every connected connection and returns how many
// writes succeeded.
func (c *Client) broadcast(msg []byte) int {
	c.mu.RLock()
	targets := make([]*conn, 0, len(c.conns))
	for _, cn := range c.conns {
		if cn != nil {
			targets = append(targets, cn)
		}
	}
	c.mu.RUnlock()

	sent := 0
	for _, cn := range targets {
		if err := cn.send(msg); err == nil {
			sent++
			c.sent.Add(1)
		}
	}
	return sent
}
