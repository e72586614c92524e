package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomyedwab/cratedb/client"
	"github.com/tomyedwab/cratedb/config"
	"github.com/tomyedwab/cratedb/types"
)

const driverName = "crate"

var (
	// ErrNoTransactions is returned by Begin; the database has no transactions.
	ErrNoTransactions = errors.New("crate: transactions are not supported")
	// ErrNoLastInsertID is returned by Result.LastInsertId.
	ErrNoLastInsertID = errors.New("crate: LastInsertId is not supported")
	// ErrNamedArgs is returned when a named argument is passed.
	ErrNamedArgs = errors.New("crate: named arguments are not supported")
)

func init() {
	sql.Register(driverName, &Driver{})
}

// --- Driver implementation ---

// Driver is the database/sql driver for CrateDB.
type Driver struct{}

// Open returns a new connection for dsn. See ParseDSN for the format.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	connector, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector parses dsn once for all connections of a sql.DB.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewConnector(cfg)
}

// ParseDSN turns a data source name into a client configuration. Accepted
// forms are "" (defaults), "host:port" and
// "crate://host:port?timeout=6s&keep_alive=30s&read_buffer_size=8192".
// Timeouts are Go durations or bare milliseconds.
func ParseDSN(dsn string) (config.Config, error) {
	cfg := config.Default()
	if dsn == "" {
		return cfg, nil
	}

	if !strings.Contains(dsn, "://") {
		cfg.Server = dsn
		cfg.Servers = []string{dsn}
		return cfg, cfg.Validate()
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return cfg, fmt.Errorf("crate: invalid DSN: %w", err)
	}
	if u.Scheme != driverName {
		return cfg, fmt.Errorf("crate: unsupported DSN scheme %q", u.Scheme)
	}
	if u.Host != "" {
		cfg.Server = u.Host
		cfg.Servers = []string{u.Host}
	}

	q := u.Query()
	if v := q.Get("timeout"); v != "" {
		if cfg.Timeout, err = config.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("crate: invalid timeout %q: %w", v, err)
		}
	}
	if v := q.Get("keep_alive"); v != "" {
		if cfg.KeepAlive, err = config.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("crate: invalid keep_alive %q: %w", v, err)
		}
	}
	if v := q.Get("read_buffer_size"); v != "" {
		if cfg.ReadBufferSize, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("crate: invalid read_buffer_size %q: %w", v, err)
		}
	}
	return cfg, cfg.Validate()
}

// --- Connector implementation ---

// Connector creates connections sharing one configuration. Use it with
// sql.OpenDB to pass client options such as a logger.
type Connector struct {
	cfg  config.Config
	opts []client.Option
}

// NewConnector validates cfg and returns a connector for it.
func NewConnector(cfg config.Config, opts ...client.Option) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Connector{cfg: cfg, opts: opts}, nil
}

// Connect returns a new connection. The socket is opened by the first
// statement.
func (c *Connector) Connect(context.Context) (driver.Conn, error) {
	cl, err := client.New(c.cfg, c.opts...)
	if err != nil {
		return nil, err
	}
	return &Conn{client: cl}, nil
}

// Driver returns the crate driver.
func (c *Connector) Driver() driver.Driver {
	return &Driver{}
}

// --- Connection implementation ---

// Conn implements driver.Conn on top of one client.Client.
type Conn struct {
	client *client.Client
}

// Client returns the underlying client.
func (c *Conn) Client() *client.Client {
	return c.client
}

// Prepare registers a statement. Nothing is sent until it is executed.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{conn: c, stmt: c.client.Prepare(query)}, nil
}

// PrepareContext is Prepare; registering a statement does no I/O.
func (c *Conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	return c.Prepare(query)
}

// Close releases the connection.
func (c *Conn) Close() error {
	return c.client.Close()
}

// Begin always fails.
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, ErrNoTransactions
}

// BeginTx always fails.
func (c *Conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return nil, ErrNoTransactions
}

// Ping runs SELECT 1.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.client.Execute(ctx, "SELECT 1")
	return err
}

// CheckNamedValue accepts the standard driver types plus anything that
// encodes to JSON, such as slices for array columns and maps for objects.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if nv.Name != "" {
		return fmt.Errorf("%w: %q", ErrNamedArgs, nv.Name)
	}
	if v, err := driver.DefaultParameterConverter.ConvertValue(nv.Value); err == nil {
		nv.Value = v
		return nil
	}
	if _, err := json.Marshal(nv.Value); err != nil {
		return fmt.Errorf("crate: unsupported argument type %T: %w", nv.Value, err)
	}
	return nil
}

// ExecContext runs query directly without registering a statement.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	values, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	n, err := c.client.Execute(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	return result{rowCount: n}, nil
}

// QueryContext runs query directly and returns its rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	values, err := convertArgs(args)
	if err != nil {
		return nil, err
	}
	if _, err := c.client.Execute(ctx, query, values...); err != nil {
		return nil, err
	}
	return newRows(c.client.Result()), nil
}

// --- Statement implementation ---

// Stmt implements driver.Stmt with a registered client statement.
type Stmt struct {
	conn *Conn
	stmt *client.Stmt
}

// Close unregisters the statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

// NumInput returns -1; placeholders are counted by the server.
func (s *Stmt) NumInput() int {
	return -1
}

// Exec binds args and executes the statement.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query binds args, executes the statement and returns its rows.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// ExecContext binds args and executes the statement.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	n, err := s.run(ctx, args)
	if err != nil {
		return nil, err
	}
	return result{rowCount: n}, nil
}

// QueryContext binds args, executes the statement and returns its rows.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if _, err := s.run(ctx, args); err != nil {
		return nil, err
	}
	sink, err := s.conn.client.StmtResult(s.stmt.Handle())
	if err != nil {
		return nil, err
	}
	return newRows(sink), nil
}

func (s *Stmt) run(ctx context.Context, args []driver.NamedValue) (int64, error) {
	values, err := convertArgs(args)
	if err != nil {
		return -1, err
	}
	for _, v := range values {
		if err := s.stmt.Bind(v); err != nil {
			return -1, err
		}
	}
	return s.stmt.Execute(ctx)
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// convertArgs maps driver values onto JSON-encodable arguments.
func convertArgs(args []driver.NamedValue) ([]any, error) {
	values := make([]any, len(args))
	for i, arg := range args {
		if arg.Name != "" {
			return nil, fmt.Errorf("%w: %q", ErrNamedArgs, arg.Name)
		}
		switch v := arg.Value.(type) {
		case time.Time:
			values[i] = v.Format(time.RFC3339Nano)
		case []byte:
			values[i] = string(v)
		default:
			values[i] = v
		}
	}
	return values, nil
}

// --- Result implementation ---

type result struct {
	rowCount int64
}

func (r result) LastInsertId() (int64, error) {
	return 0, ErrNoLastInsertID
}

// RowsAffected returns the rowcount reported by the server.
func (r result) RowsAffected() (int64, error) {
	return r.rowCount, nil
}

// --- Rows implementation ---

// rows iterates over a copy of a result sink.
type rows struct {
	columns []string
	data    [][]any
	pos     int
}

func newRows(sink types.Sink) *rows {
	return &rows{columns: sink.Cols, data: sink.Rows}
}

func (r *rows) Columns() []string {
	return r.columns
}

func (r *rows) Close() error {
	r.data = nil
	r.pos = 0
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}

	row := r.data[r.pos]
	if len(row) != len(dest) {
		return fmt.Errorf("crate: column count mismatch. Expected %d, got %d", len(dest), len(row))
	}
	for i, val := range row {
		v, err := convertValue(val)
		if err != nil {
			return fmt.Errorf("crate: column %q: %w", r.columns[i], err)
		}
		dest[i] = v
	}

	r.pos++
	return nil
}

// convertValue maps a decoded JSON value onto a driver.Value. Integral
// numbers become int64, other numbers float64, arrays and objects their JSON
// text as []byte.
func convertValue(v any) (driver.Value, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case []any, map[string]any:
		return json.Marshal(val)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

var (
	_ driver.DriverContext      = (*Driver)(nil)
	_ driver.Connector          = (*Connector)(nil)
	_ driver.Pinger             = (*Conn)(nil)
	_ driver.ExecerContext      = (*Conn)(nil)
	_ driver.QueryerContext     = (*Conn)(nil)
	_ driver.ConnPrepareContext = (*Conn)(nil)
	_ driver.ConnBeginTx        = (*Conn)(nil)
	_ driver.NamedValueChecker  = (*Conn)(nil)
	_ driver.StmtExecContext    = (*Stmt)(nil)
	_ driver.StmtQueryContext   = (*Stmt)(nil)
)
