package client

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/config"
	"github.com/tomyedwab/cratedb/logging"
	"github.com/tomyedwab/cratedb/transport"
	"github.com/tomyedwab/cratedb/types"
	"github.com/tomyedwab/cratedb/wire"
)

// Transport runs exchanges against a node. *transport.Conn is the
// implementation used unless WithTransport replaces it.
type Transport interface {
	Acquire(ctx context.Context) (net.Conn, error)
	Execute(ctx context.Context, frame []byte, sink *types.Sink) (int64, error)
	Close() error
}

// Client is the handle through which all statements reach one node. It owns
// the connection, the global result sink used by Execute and the statement
// registry.
type Client struct {
	cfg  config.Config
	log  *zap.Logger
	conn Transport

	mu    sync.Mutex // Protects sink, next and stmts
	sink  types.Sink
	next  Handle
	stmts map[Handle]*statement
}

// Option represents a functional option for configuring the Client
type Option func(*Client)

// WithLogger sets the logger used by the client and its connection
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// WithTransport replaces the socket transport
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.conn = t
	}
}

// New creates a client for cfg. No connection is made until the first
// statement runs or Connect is called.
func New(cfg config.Config, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:   cfg,
		log:   zap.NewNop(),
		stmts: make(map[Handle]*statement),
	}
	for _, option := range options {
		option(c)
	}

	if c.conn == nil {
		c.conn = transport.New(cfg.Server, transport.Options{
			Timeout:        cfg.Timeout,
			KeepAlive:      cfg.KeepAlive,
			ReadBufferSize: cfg.ReadBufferSize,
			Servers:        cfg.Servers,
			Logger:         c.log,
		})
	}
	return c, nil
}

// Open loads the options file at path (see config.Load), builds a logger
// from its log section and creates a client. An empty path uses defaults.
func Open(path string, options ...Option) (*Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return New(cfg, append([]Option{WithLogger(logger)}, options...)...)
}

// Config returns the configuration the client was created with.
func (c *Client) Config() config.Config {
	return c.cfg
}

// Connect establishes the connection if it is not already up. Calling it
// again is a no-op. Failures are recorded on the global sink.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.conn.Acquire(ctx); err != nil {
		c.mu.Lock()
		c.sink.Fail(err)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Execute runs sql with positional args and stores the outcome on the global
// sink. It returns the server rowcount, or -1 with the error on failure.
func (c *Client) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	var sink types.Sink
	n, err := c.exchange(ctx, sql, args, &sink)

	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
	return n, err
}

// exchange encodes one request and runs it into sink.
func (c *Client) exchange(ctx context.Context, sql string, args []any, sink *types.Sink) (int64, error) {
	frame, err := wire.EncodeRequest(sql, args)
	if err != nil {
		sink.Fail(err)
		return -1, err
	}
	return c.conn.Execute(ctx, frame, sink)
}

// Result returns a copy of the global sink.
func (c *Client) Result() types.Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Clone()
}

// GetValue returns the raw decoded value of field in row of the last
// Execute result.
func (c *Client) GetValue(row int, field string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Value(row, field)
}

// GetString returns field in row of the last Execute result as text.
func (c *Client) GetString(row int, field string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.String(row, field)
}

// GetInt returns field in row of the last Execute result as an int.
func (c *Client) GetInt(row int, field string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Int(row, field)
}

// GetLong returns field in row of the last Execute result as an int64.
func (c *Client) GetLong(row int, field string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Long(row, field)
}

// GetNumber returns field in row of the last Execute result as a float64.
func (c *Client) GetNumber(row int, field string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Number(row, field)
}

// GetBool returns field in row of the last Execute result as a bool.
func (c *Client) GetBool(row int, field string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.Bool(row, field)
}

// Columns returns the column names of the last Execute result.
func (c *Client) Columns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cols := make([]string, len(c.sink.Cols))
	copy(cols, c.sink.Cols)
	return cols
}

// RowCount returns the rowcount of the last Execute result.
func (c *Client) RowCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.RowCount
}

// ErrorMessage returns the last global error message, or "" when the last
// global operation succeeded.
func (c *Client) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.ErrorMessage()
}

// ErrorCode returns the last global error code, or 0.
func (c *Client) ErrorCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink.ErrorCode()
}

// Close releases the connection. Registered statements survive and the next
// execute reconnects.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return err
	}
	c.log.Debug("client closed", zap.String("addr", c.cfg.Server))
	return nil
}
