// Package nodetest runs an in-process stand-in for a CrateDB node so the
// client can be exercised over a real loopback socket.
//
// A Server accepts the bare HTTP/1.1 frames the client sends (no Host header),
// decodes the SQL request, hands it to a Handler and writes the Reply back
// with a Content-Length header. Options make it misbehave in the ways a real
// network does: split writes, closed connections, stalls.
package nodetest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/types"
)

// Reply is what a Handler sends back for one request.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// Handler answers one decoded SQL request.
type Handler func(req *types.Request) Reply

// Stall selects a way for the server to stop cooperating.
type Stall int

const (
	// StallNone serves normally.
	StallNone Stall = iota
	// StallRead accepts connections but never reads from them.
	StallRead
	// StallRespond reads the request but never answers it.
	StallRespond
)

// Received is one request recorded by the server.
type Received struct {
	ID      string // Assigned on receipt
	Conn    int    // Sequence number of the connection it arrived on, from 1
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	Request types.Request
}

type options struct {
	chunkSize          int
	chunkDelay         time.Duration
	closeAfterResponse bool
	omitContentLength  bool
	stall              Stall
	logger             *zap.Logger
}

// Option configures a Server.
type Option func(*options)

// WithChunkedWrites splits every response into writes of size bytes separated
// by delay, so the client has to accumulate several reads.
func WithChunkedWrites(size int, delay time.Duration) Option {
	return func(o *options) {
		o.chunkSize = size
		o.chunkDelay = delay
	}
}

// WithCloseAfterResponse sends "Connection: close" and closes the socket after
// every response.
func WithCloseAfterResponse() Option {
	return func(o *options) {
		o.closeAfterResponse = true
	}
}

// WithoutContentLength leaves the Content-Length header off responses.
func WithoutContentLength() Option {
	return func(o *options) {
		o.omitContentLength = true
	}
}

// WithStall makes the server stop cooperating in the given way.
func WithStall(mode Stall) Option {
	return func(o *options) {
		o.stall = mode
	}
}

// WithLogger sets the logger used for server side events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Server is a fake node listening on a loopback port.
type Server struct {
	ln      net.Listener
	handler Handler
	opts    options
	log     *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	accepted int
	requests []Received
	closed   bool
}

// Start listens on 127.0.0.1 with a random port and begins serving.
func Start(handler Handler, opts ...Option) (*Server, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := &Server{
		ln:      ln,
		handler: handler,
		opts:    o,
		log:     o.logger.With(zap.String("node", ln.Addr().String())),
		done:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// NewServer starts a Server for the duration of a test.
func NewServer(tb testing.TB, handler Handler, opts ...Option) *Server {
	tb.Helper()
	s, err := Start(handler, opts...)
	if err != nil {
		tb.Fatalf("Failed to start fake node: %v", err)
	}
	tb.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.requests))
	copy(out, s.requests)
	return out
}

// DropConnections closes every open client connection without stopping the
// listener, as a node restart would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for nc := range s.conns {
		_ = nc.Close()
	}
}

// Close stops the listener, drops open connections and waits for the
// serving goroutines to exit. It is safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	_ = s.ln.Close()
	for nc := range s.conns {
		_ = nc.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.accepted++
		seq := s.accepted
		s.conns[nc] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(nc, seq)
	}
}

func (s *Server) serveConn(nc net.Conn, seq int) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, nc)
		s.mu.Unlock()
		_ = nc.Close()
	}()

	log := s.log.With(zap.Int("conn", seq))
	log.Debug("accepted", zap.String("remote", nc.RemoteAddr().String()))

	if s.opts.stall == StallRead {
		<-s.done
		return
	}

	br := bufio.NewReader(nc)
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			if err != io.EOF {
				log.Debug("read request failed", zap.Error(err))
			}
			return
		}
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			log.Debug("read body failed", zap.Error(err))
			return
		}

		rec := Received{
			ID:     uuid.NewString(),
			Conn:   seq,
			Method: req.Method,
			Path:   req.URL.Path,
			Header: req.Header,
			Body:   body,
		}

		var reply Reply
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&rec.Request); err != nil {
			reply = Failure(4000, "SQLParseException[Missing request body]")
		} else {
			reply = s.handler(&rec.Request)
		}

		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()
		log.Debug("request", zap.String("request_id", rec.ID), zap.String("stmt", rec.Request.Stmt))

		if s.opts.stall == StallRespond {
			<-s.done
			return
		}
		if err := s.writeReply(nc, reply); err != nil {
			log.Debug("write reply failed", zap.Error(err))
			return
		}
		if s.opts.closeAfterResponse {
			return
		}
	}
}

func (s *Server) writeReply(nc net.Conn, reply Reply) error {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := reply.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	if !s.opts.omitContentLength {
		header.Set("Content-Length", strconv.Itoa(len(reply.Body)))
	}
	if s.opts.closeAfterResponse {
		header.Set("Connection", "close")
	}

	var frame bytes.Buffer
	fmt.Fprintf(&frame, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if err := header.Write(&frame); err != nil {
		return err
	}
	frame.WriteString("\r\n")
	frame.Write(reply.Body)

	out := frame.Bytes()
	if s.opts.chunkSize <= 0 {
		_, err := nc.Write(out)
		return err
	}
	for len(out) > 0 {
		n := min(s.opts.chunkSize, len(out))
		if _, err := nc.Write(out[:n]); err != nil {
			return err
		}
		out = out[n:]
		if len(out) > 0 && s.opts.chunkDelay > 0 {
			select {
			case <-time.After(s.opts.chunkDelay):
			case <-s.done:
				return nil
			}
		}
	}
	return nil
}
