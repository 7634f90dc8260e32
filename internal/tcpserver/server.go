// Package tcpserver accepts newline-delimited ingest payloads over TCP.
package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	// DefaultAddr is used when NewServer is given an empty address.
	DefaultAddr = "127.0.0.1:4000"

	// DefaultLineChannelSize is the default buffer size for the incoming line channel.
	DefaultLineChannelSize = 100_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single payload line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	// DefaultMaxConns caps concurrently served connections.
	DefaultMaxConns = 256

	// DefaultIdleTimeout closes connections that send nothing for this long.
	DefaultIdleTimeout = 5 * time.Minute

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// ServerConfig holds tunable parameters for the TCP server. Zero fields take
// the package defaults.
type ServerConfig struct {
	LineChannelSize int
	MaxLineSize     int
	MaxConns        int
	IdleTimeout     time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.LineChannelSize <= 0 {
		c.LineChannelSize = DefaultLineChannelSize
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}

// Server reads newline-delimited payloads from any number of TCP peers and
// emits every non-empty line, tagged "tcp/<peer>", on one channel.
type Server struct {
	addr   string
	limits ServerConfig

	listener net.Listener
	out      chan model.IngestEnvelope
	slots    chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	running  sync.WaitGroup
	stopOnce sync.Once

	conns atomic.Int64
	lines atomic.Int64
}

// NewServer creates an unstarted server. An empty addr means DefaultAddr.
func NewServer(addr string, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	var c ServerConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	c = c.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		limits: c,
		out:    make(chan model.IngestEnvelope, c.LineChannelSize),
		slots:  make(chan struct{}, c.MaxConns),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.running.Add(1)
	go s.accept()
	return nil
}

func (s *Server) accept() {
	defer s.running.Done()
	backoff := minAcceptBackoff
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Printf("tcpserver: accept error: %v", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxAcceptBackoff)
			continue
		}
		backoff = minAcceptBackoff

		if !s.acquire() {
			log.Printf("tcpserver: rejecting %s, %d connections already open", conn.RemoteAddr(), cap(s.slots))
			conn.Close()
			continue
		}
		s.conns.Add(1)
		s.running.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) acquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.running.Done()
	defer func() { <-s.slots }()
	defer conn.Close()

	// A blocked read only returns once the connection is closed.
	release := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer release()

	if err := s.readLines(conn); err != nil && s.ctx.Err() == nil {
		logReadEnd(conn.RemoteAddr(), err, s.limits.MaxLineSize)
	}
}

// readLines forwards lines until EOF, a read error, or Stop.
func (s *Server) readLines(conn net.Conn) error {
	source := "tcp/" + conn.RemoteAddr().String()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, min(64*1024, s.limits.MaxLineSize)), s.limits.MaxLineSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.limits.IdleTimeout))
		if !sc.Scan() {
			return sc.Err()
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		select {
		case s.out <- model.IngestEnvelope{Source: source, Line: sc.Text()}:
			s.lines.Add(1)
		case <-s.ctx.Done():
			return nil
		}
	}
}

func logReadEnd(peer net.Addr, err error, maxLine int) {
	var ne net.Error
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		log.Printf("tcpserver: dropped connection %s due to line exceeding max size (%d bytes)", peer, maxLine)
	case errors.As(err, &ne) && ne.Timeout():
		log.Printf("tcpserver: closed idle connection %s", peer)
	default:
		log.Printf("tcpserver: read error from %s: %v", peer, err)
	}
}

// Stop closes the listener and every open connection, waits for handlers to
// exit and closes the line channel. Calling Stop more than once is safe.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.running.Wait()
		close(s.out)
		log.Printf("tcpserver: stopped after %d connections, %d lines", s.conns.Load(), s.lines.Load())
	})
	return nil
}

// Lines returns the channel of received lines.
func (s *Server) Lines() <-chan model.IngestEnvelope {
	return s.out
}

// Counts reports how many connections were accepted and lines forwarded.
func (s *Server) Counts() (conns, lines int64) {
	return s.conns.Load(), s.lines.Load()
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
