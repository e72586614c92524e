// Package transport owns the socket to a CrateDB node and runs request/response
// exchanges over it.
//
// A Conn holds at most one socket. It is established lazily by the first
// exchange, reused by later ones and only replaced after it has been marked
// broken (I/O failure, timeout, malformed response or the node closing its
// side) or closed by the caller.
//
// Waits are bounded by socket deadlines: the runtime poller blocks until the
// socket is ready or the deadline passes, so no wait ever spins.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/config"
	"github.com/tomyedwab/cratedb/types"
)

// State is the lifecycle state of a Conn.
type State int

const (
	// StateIdle means no socket is held: never connected or closed by the
	// caller.
	StateIdle State = iota
	// StateConnected means a socket is cached and considered healthy.
	StateConnected
	// StateBroken means the last socket is suspect and has been released; the
	// next exchange reconnects.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateBroken:
		return "broken"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes a Conn. Zero values fall back to the config defaults.
type Options struct {
	Timeout        time.Duration // Connect, per-write and per-read wait bound
	KeepAlive      time.Duration
	ReadBufferSize int
	Servers        []string // Reserved; never used for routing
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultTimeout
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = config.DefaultKeepAlive
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = config.DefaultReadBufferSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Conn is the single connection to a node. It serialises exchanges: a
// second caller waits until the exchange in flight has returned. Callers
// must still not interleave statements that depend on each other's results.
type Conn struct {
	addr string
	opts Options
	log  *zap.Logger
	inst *instruments

	mu    sync.Mutex // Held for the whole of acquire, exchange and close
	nc    net.Conn
	peer  string // Resolved address of the cached socket
	id    string // Changes on every (re)connect
	state State
}

// New creates a Conn for addr (host:port). No socket is opened until the
// first Acquire or Execute.
func New(addr string, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		addr: addr,
		opts: opts,
		log:  opts.Logger.With(zap.String("addr", addr)),
		inst: newInstruments(opts.Logger),
	}
}

// Addr returns the configured node address.
func (c *Conn) Addr() string {
	return c.addr
}

// Servers returns the reserved server list. It is never consulted for routing.
func (c *Conn) Servers() []string {
	return append([]string(nil), c.opts.Servers...)
}

// Timeout returns the wait bound applied to connect, writes and reads.
func (c *Conn) Timeout() time.Duration {
	return c.opts.Timeout
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID returns the id of the current socket, or "" when none is held.
func (c *Conn) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Peer returns the resolved address of the current socket, or "".
func (c *Conn) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Acquire returns the cached socket, connecting first if none is held or the
// previous one was marked broken.
func (c *Conn) Acquire(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked(ctx)
}

func (c *Conn) acquireLocked(ctx context.Context) (net.Conn, error) {
	if c.state == StateConnected && c.nc != nil {
		return c.nc, nil
	}

	peer, err := c.resolve(ctx)
	if err != nil {
		c.log.Warn("address resolution failed", zap.Error(err))
		return nil, err
	}

	dialer := net.Dialer{Timeout: c.opts.Timeout, KeepAlive: c.opts.KeepAlive}
	start := time.Now()
	nc, err := dialer.DialContext(ctx, "tcp", peer)
	if err != nil {
		var cErr *types.Error
		if isTimeout(err) {
			cErr = types.NewErrorWithCause(types.KindConnectTimeout, int(syscall.ETIMEDOUT), "connection timed out", err)
		} else {
			cErr = types.NewErrorWithCause(types.KindSocketIO, 0, "couldn't connect to "+peer, err)
		}
		c.log.Warn("connect failed", zap.String("peer", peer), zap.Duration("elapsed", time.Since(start)), zap.Error(cErr))
		return nil, cErr
	}

	c.nc = nc
	c.peer = peer
	c.id = uuid.NewString()
	c.state = StateConnected
	c.log.Debug("connected",
		zap.String("conn_id", c.id),
		zap.String("peer", peer),
		zap.Duration("elapsed", time.Since(start)))
	return nc, nil
}

// resolve turns the configured host:port into ip:port.
func (c *Conn) resolve(ctx context.Context) (string, error) {
	host, port, err := net.SplitHostPort(c.addr)
	if err != nil {
		return "", types.NewErrorWithCause(types.KindAddressResolution, 0, "couldn't construct an address from "+c.addr, err)
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", types.NewErrorWithCause(types.KindAddressResolution, 0, "couldn't resolve "+host, err)
	}
	if len(addrs) == 0 {
		return "", types.NewError(types.KindAddressResolution, 0, "no addresses found for "+host)
	}
	return net.JoinHostPort(addrs[0], port), nil
}

// markBrokenLocked releases the socket after a failure so the next exchange
// reconnects instead of reusing a dead socket.
func (c *Conn) markBrokenLocked(reason string, cause error) {
	if c.nc != nil {
		_ = c.nc.Close()
	}
	c.log.Warn("connection marked broken",
		zap.String("conn_id", c.id),
		zap.String("reason", reason),
		zap.Error(cause))
	c.nc = nil
	c.peer = ""
	c.id = ""
	c.state = StateBroken
}

// Close releases the cached socket. It is idempotent and a no-op when never
// connected.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		c.state = StateIdle
		return nil
	}
	err := c.nc.Close()
	c.log.Debug("closed", zap.String("conn_id", c.id))
	c.nc = nil
	c.peer = ""
	c.id = ""
	c.state = StateIdle
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close connection to %s: %w", c.addr, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
