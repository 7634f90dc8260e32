package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	dialTimeout     = 5 * time.Second
	maxResponseSize = 10 * 1024 * 1024
)

var (
	_ model.LogQuerier = (*Client)(nil)
	_ model.Rebuilder  = (*Client)(nil)
)

// Client is a model.LogQuerier backed by a running server's socket. Calls
// are serialized over a single connection.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Scanner
	enc     *json.Encoder
	lastID  int
	timeout time.Duration
}

// Dial connects to the socket RPC server at socketPath. An optional timeout
// bounds each call and defaults to model.DefaultQueryTimeout.
func Dial(socketPath string, timeout ...time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial %s: %w", socketPath, err)
	}
	c := &Client{
		conn:    conn,
		reader:  bufio.NewScanner(conn),
		enc:     json.NewEncoder(conn),
		timeout: model.DefaultQueryTimeout,
	}
	c.reader.Buffer(make([]byte, 0, 64*1024), maxResponseSize)
	if len(timeout) > 0 && timeout[0] > 0 {
		c.timeout = timeout[0]
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call sends one request and decodes its result into dest. A server-side
// failure comes back as *RPCError.
func (c *Client) call(method string, params, dest any) error {
	req := Request{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: %s params: %w", method, err)
		}
		req.Params = raw
	}

	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, dest); err != nil {
		return fmt.Errorf("socketrpc: %s result: %w", method, err)
	}
	return nil
}

func (c *Client) roundTrip(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID++
	req.ID = c.lastID

	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("socketrpc: send %s: %w", req.Method, err)
	}
	if !c.reader.Scan() {
		err := c.reader.Err()
		if err == nil {
			err = errors.New("connection closed by server")
		}
		return Response{}, fmt.Errorf("socketrpc: read %s: %w", req.Method, err)
	}

	var resp Response
	if err := json.Unmarshal(c.reader.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("socketrpc: decode %s response: %w", req.Method, err)
	}
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("socketrpc: response id %d does not match request %d", resp.ID, req.ID)
	}
	return resp, nil
}

func (c *Client) FetchAll() (records []model.IndexedRecord, err error) {
	err = c.call("FetchAll", nil, &records)
	return records, err
}

func (c *Client) FetchByLevel(bucket string) (records []model.IndexedRecord, err error) {
	err = c.call("FetchByLevel", LevelParams{Bucket: bucket}, &records)
	return records, err
}

func (c *Client) SearchByWord(word string) (records []model.IndexedRecord, err error) {
	err = c.call("SearchByWord", SearchParams{Word: word}, &records)
	return records, err
}

func (c *Client) Get(index uint64) (model.LogRecord, bool, error) {
	var res GetResult
	err := c.call("Get", GetParams{Index: index}, &res)
	return res.Record, res.Found, err
}

func (c *Client) Stats() (stats model.Stats, err error) {
	err = c.call("Stats", nil, &stats)
	return stats, err
}

func (c *Client) Rebuild() (stats model.RebuildStats, err error) {
	err = c.call("Rebuild", nil, &stats)
	return stats, err
}
