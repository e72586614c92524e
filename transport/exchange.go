package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/types"
	"github.com/tomyedwab/cratedb/wire"
)

// Execute sends one request frame and reads the response into sink.
//
// On success it returns the server rowcount and sink holds the full result.
// On failure it returns -1 with the classified error, and sink holds only the
// error code and message.
func (c *Conn) Execute(ctx context.Context, frame []byte, sink *types.Sink) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.inst.startSpan(ctx, c.addr, len(frame))
	defer span.End()

	start := time.Now()
	rowCount, err := c.exchangeLocked(ctx, frame, sink)
	elapsed := time.Since(start)
	c.inst.record(ctx, span, elapsed, rowCount, err)

	if err != nil {
		sink.Fail(err)
		c.log.Warn("exchange failed",
			zap.String("conn_id", c.id),
			zap.String("state", c.state.String()),
			zap.Int("error_code", types.Info(err).Code),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return -1, err
	}
	c.log.Debug("exchange finished",
		zap.String("conn_id", c.id),
		zap.Int64("rowcount", rowCount),
		zap.Duration("elapsed", elapsed))
	return rowCount, nil
}

func (c *Conn) exchangeLocked(ctx context.Context, frame []byte, sink *types.Sink) (int64, error) {
	nc, err := c.acquireLocked(ctx)
	if err != nil {
		return -1, err
	}

	if err := c.writeFrame(nc, frame); err != nil {
		c.markBrokenLocked("write failed", err)
		return -1, err
	}

	raw, closed, err := c.readResponse(nc)
	if err != nil {
		c.markBrokenLocked("read failed", err)
		return -1, err
	}

	dec, err := wire.DecodeResponse(raw)
	if types.IsMalformedResponse(err) {
		c.markBrokenLocked("malformed response", err)
		return -1, err
	}
	// Server errors may also end the connection.
	headers, _, _ := wire.SplitFrame(raw)
	switch {
	case closed:
		c.markBrokenLocked("node closed the connection", nil)
	case !wire.KeepAlive(headers):
		c.markBrokenLocked("node sent Connection: close", nil)
	}
	if err != nil {
		return -1, err
	}

	sink.Fill(dec.Headers, dec.Body, dec.Response)
	return dec.Response.RowCount, nil
}

// writeFrame sends frame in full. Each write waits at most Timeout for the
// socket to accept data; a wait that ends without any progress is fatal.
func (c *Conn) writeFrame(nc net.Conn, frame []byte) error {
	unsent := frame
	for len(unsent) > 0 {
		if err := nc.SetWriteDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
			return types.NewErrorWithCause(types.KindSocketIO, 0, "Error writing data to crate server", err)
		}
		n, err := nc.Write(unsent)
		unsent = unsent[n:]
		if err == nil {
			continue
		}
		if isTimeout(err) {
			if n > 0 {
				// The peer is draining slowly; give it another window.
				continue
			}
			return types.NewErrorWithCause(types.KindWriteTimeout, int(syscall.ETIMEDOUT), "write timed out", err)
		}
		return types.NewErrorWithCause(types.KindSocketIO, 0, "Error writing data to crate server", err)
	}
	return nil
}

// readResponse accumulates one response. It stops when the header block and
// Content-Length bytes of body are present, or at EOF (closed is then true).
// Responses without a Content-Length fall back to treating a read shorter
// than the buffer as the end of the response.
func (c *Conn) readResponse(nc net.Conn) (raw []byte, closed bool, err error) {
	buf := make([]byte, c.opts.ReadBufferSize)
	var resp bytes.Buffer

	expected := -1 // Total frame length once known
	framed := false
	for {
		if err := nc.SetReadDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
			return nil, false, types.NewErrorWithCause(types.KindSocketIO, 0, "Error reading data from crate server", err)
		}
		n, err := nc.Read(buf)
		resp.Write(buf[:n])
		if err != nil {
			switch {
			case errors.Is(err, io.EOF) && resp.Len() == 0:
				return nil, true, types.NewErrorWithCause(types.KindSocketIO, 0, "connection closed by node", err)
			case errors.Is(err, io.EOF):
				return resp.Bytes(), true, nil
			case isTimeout(err) && n > 0:
				continue
			case isTimeout(err):
				return nil, false, types.NewErrorWithCause(types.KindReadTimeout, int(syscall.ETIMEDOUT), "read timed out", err)
			default:
				return nil, false, types.NewErrorWithCause(types.KindSocketIO, 0, "Error reading data from crate server", err)
			}
		}

		if !framed {
			if headers, _, ok := wire.SplitFrame(resp.Bytes()); ok {
				framed = true
				if cl, ok := wire.ContentLength(headers); ok {
					expected = len(headers) + 4 + cl
				}
			}
		}

		switch {
		case expected >= 0 && resp.Len() >= expected:
			return resp.Bytes()[:expected], false, nil
		case framed && expected < 0 && n < len(buf):
			// No Content-Length: a short read is taken as the end.
			return resp.Bytes(), false, nil
		}
	}
}
