package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/logdex/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the query engine over a Unix domain socket.
// Each method maps 1:1 to model.LogQuerier or model.Rebuilder.
//
//   Method          Params              Result
//   ────────────    ─────────────────   ──────────────────────
//   FetchAll        (none)              []IndexedRecord
//   FetchByLevel    {bucket: string}    []IndexedRecord
//   SearchByWord    {word: string}      []IndexedRecord
//   Get             {index: uint64}     GetResult
//   Stats           (none)              Stats
//   Rebuild         (none)              RebuildStats
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including unknown bucket and empty search word)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (persistence failure)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// IsInvalidParams reports whether the server rejected the caller's input.
func (e *RPCError) IsInvalidParams() bool { return e.Code == codeInvalidParams }

// LevelParams are the params of FetchByLevel.
type LevelParams struct {
	Bucket string `json:"bucket"`
}

// SearchParams are the params of SearchByWord.
type SearchParams struct {
	Word string `json:"word"`
}

// GetParams are the params of Get.
type GetParams struct {
	Index uint64 `json:"index"`
}

// GetResult is the result of the Get method.
type GetResult struct {
	Found  bool            `json:"found"`
	Record model.LogRecord `json:"record"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/logdex/logdex.sock, falling back to
// ~/.local/state/logdex/logdex.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "logdex", "logdex.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/logdex.sock"
	}
	return filepath.Join(home, ".local", "state", "logdex", "logdex.sock")
}
