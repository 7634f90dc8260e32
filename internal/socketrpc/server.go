package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	maxRequestSize   = 10 * 1024 * 1024
	stalePingTimeout = 500 * time.Millisecond

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Store is the query surface served over the socket.
type Store interface {
	model.LogQuerier
	model.Rebuilder
}

// Server answers JSON-RPC 2.0 requests for a Store on a Unix domain socket.
// Each connection carries newline-delimited requests answered in order.
type Server struct {
	socketPath string
	store      Store

	listener net.Listener
	handlers sync.WaitGroup

	mu      sync.Mutex
	closing bool
	conns   map[net.Conn]struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server for store. Nothing listens until Start.
func NewServer(socketPath string, store Store) *Server {
	return &Server{
		socketPath: socketPath,
		store:      store,
		conns:      make(map[net.Conn]struct{}),
		done:       make(chan struct{}),
	}
}

// Start claims the socket path and begins accepting connections.
func (s *Server) Start() error {
	if err := s.claimSocket(); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.handlers.Add(1)
	go s.accept()

	log.Printf("socketrpc: listening on %s", s.socketPath)
	return nil
}

// claimSocket creates the parent directory and removes a socket file left
// behind by a crashed process. A socket that still answers is refused.
func (s *Server) claimSocket() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}
	if _, err := os.Stat(s.socketPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if conn, err := net.DialTimeout("unix", s.socketPath, stalePingTimeout); err == nil {
		conn.Close()
		return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("socketrpc: remove stale socket: %w", err)
	}
	return nil
}

// Stop closes the listener and every open connection, waits for handlers
// to return, and removes the socket file. Later calls do nothing.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closing = true
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		if s.listener != nil {
			s.listener.Close()
		}
		s.handlers.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) accept() {
	defer s.handlers.Done()
	backoff := minAcceptBackoff
	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			// Transient failures such as fd exhaustion keep the loop alive.
			log.Printf("socketrpc: accept error: %v (retry in %s)", err, backoff)
			select {
			case <-s.done:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxAcceptBackoff)
			continue
		}
		backoff = minAcceptBackoff
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.handlers.Add(1)
		go s.serve(conn)
	}
}

// track registers conn for Stop. It reports false once Stop has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) serve(conn net.Conn) {
	defer s.handlers.Done()
	defer s.untrack(conn)

	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	out := json.NewEncoder(conn)

	for in.Scan() {
		var resp Response
		var req Request
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			resp = Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParseError, Message: "parse error"}}
		} else {
			resp = s.dispatch(req)
		}
		if err := out.Encode(resp); err != nil {
			return
		}
	}
}

// handler runs one method against the store. Params are still raw.
type handler func(st Store, params json.RawMessage) (any, error)

var methods = map[string]handler{
	"FetchAll": func(st Store, _ json.RawMessage) (any, error) {
		return st.FetchAll()
	},
	"FetchByLevel": withParams(func(st Store, p LevelParams) (any, error) {
		return st.FetchByLevel(p.Bucket)
	}),
	"SearchByWord": withParams(func(st Store, p SearchParams) (any, error) {
		return st.SearchByWord(p.Word)
	}),
	"Get": withParams(func(st Store, p GetParams) (any, error) {
		rec, found, err := st.Get(p.Index)
		return GetResult{Found: found, Record: rec}, err
	}),
	"Stats": func(st Store, _ json.RawMessage) (any, error) {
		return st.Stats()
	},
	"Rebuild": func(st Store, _ json.RawMessage) (any, error) {
		stats, err := st.Rebuild()
		if err == nil {
			log.Printf("socketrpc: rebuild requested, %d records reindexed", stats.Records)
		}
		return stats, err
	},
}

// paramsError marks a params payload that did not decode.
type paramsError struct{ err error }

func (e *paramsError) Error() string { return "invalid params: " + e.err.Error() }

func withParams[P any](fn func(Store, P) (any, error)) handler {
	return func(st Store, raw json.RawMessage) (any, error) {
		var p P
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &paramsError{err: err}
		}
		return fn(st, p)
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	h, ok := methods[req.Method]
	if !ok {
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	result, err := h(s.store, req.Params)
	if err != nil {
		resp.Error = &RPCError{Code: errorCode(err), Message: err.Error()}
		return resp
	}
	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: codeInternal, Message: err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}

func errorCode(err error) int {
	var pe *paramsError
	if errors.As(err, &pe) || model.IsClientError(err) {
		return codeInvalidParams
	}
	return codeApplication
}
