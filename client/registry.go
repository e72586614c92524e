package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/types"
)

// Handle identifies a registered statement. Handles start at 1 and are never
// reused by the same Client, even after Close.
type Handle int64

type statement struct {
	text string
	args []any // Pending; consumed by the next execute
	sink types.Sink
}

// StmtInit registers an empty statement and returns its handle.
func (c *Client) StmtInit() Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	h := c.next
	c.stmts[h] = &statement{}
	c.log.Debug("statement registered", zap.Int64("stmt_handle", int64(h)))
	return h
}

// lookupLocked returns the statement for h. An unknown or closed handle is a
// KindStatement error, also recorded on the global sink.
func (c *Client) lookupLocked(h Handle) (*statement, error) {
	st, ok := c.stmts[h]
	if !ok {
		err := types.NewError(types.KindStatement, 0, fmt.Sprintf("statement %d is closed or unknown", h))
		c.sink.Fail(err)
		return nil, err
	}
	return st, nil
}

// StmtQuery sets or replaces the query text of h.
func (c *Client) StmtQuery(h Handle, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(h)
	if err != nil {
		return err
	}
	st.text = text
	return nil
}

// StmtBind appends v to the pending arguments of h. Order matches the
// positional placeholders of the query text.
func (c *Client) StmtBind(h Handle, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(h)
	if err != nil {
		return err
	}
	st.args = append(st.args, v)
	return nil
}

// StmtExecute sends the query text and pending arguments of h and stores the
// outcome on the statement's own sink. Pending arguments are cleared whether
// or not the exchange succeeds.
func (c *Client) StmtExecute(ctx context.Context, h Handle) (int64, error) {
	c.mu.Lock()
	st, err := c.lookupLocked(h)
	if err != nil {
		c.mu.Unlock()
		return -1, err
	}
	text, args := st.text, st.args
	st.args = nil
	c.mu.Unlock()

	var sink types.Sink
	n, err := c.exchange(ctx, text, args, &sink)

	c.mu.Lock()
	if st, ok := c.stmts[h]; ok {
		st.sink = sink
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Debug("statement failed", zap.Int64("stmt_handle", int64(h)), zap.Error(err))
	}
	return n, err
}

// StmtClose removes h from the registry. Any later use of h fails.
func (c *Client) StmtClose(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.lookupLocked(h); err != nil {
		return err
	}
	delete(c.stmts, h)
	c.log.Debug("statement closed", zap.Int64("stmt_handle", int64(h)))
	return nil
}

// withSink runs fn on the sink of h under the client lock.
func (c *Client) withSink(h Handle, fn func(s *types.Sink) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(h)
	if err != nil {
		return err
	}
	return fn(&st.sink)
}

// StmtResult returns a copy of the sink of h.
func (c *Client) StmtResult(h Handle) (types.Sink, error) {
	var out types.Sink
	err := c.withSink(h, func(s *types.Sink) error {
		out = s.Clone()
		return nil
	})
	return out, err
}

// StmtGetValue returns the raw decoded value of field in row of the last
// result of h.
func (c *Client) StmtGetValue(h Handle, row int, field string) (any, error) {
	var v any
	err := c.withSink(h, func(s *types.Sink) (err error) {
		v, err = s.Value(row, field)
		return err
	})
	return v, err
}

// StmtGetString returns field in row of the last result of h as text.
func (c *Client) StmtGetString(h Handle, row int, field string) (string, error) {
	var v string
	err := c.withSink(h, func(s *types.Sink) (err error) {
		v, err = s.String(row, field)
		return err
	})
	return v, err
}

// StmtGetInt returns field in row of the last result of h as an int.
func (c *Client) StmtGetInt(h Handle, row int, field string) (int, error) {
	var v int
	err := c.withSink(h, func(s *types.Sink) (err error) {
		v, err = s.Int(row, field)
		return err
	})
	return v, err
}

// StmtGetLong returns field in row of the last result of h as an int64.
func (c *Client) StmtGetLong(h Handle, row int, field string) (int64, error) {
	var v int64
	err := c.withSink(h, func(s *types.Sink) (err error) {
		v, err = s.Long(row, field)
		return err
	})
	return v, err
}

// StmtGetNumber returns field in row of the last result of h as a float64.
func (c *Client) StmtGetNumber(h Handle, row int, field string) (float64, error) {
	var v float64
	err := c.withSink(h, func(s *types.Sink) (err error) {
		v, err = s.Number(row, field)
		return err
	})
	return v, err
}

// StmtGetBool returns field in row of the last result of h as a bool.
func (c *Client) StmtGetBool(h Handle, row int, field string) (bool, error) {
	var v bool
	err := c.withSink(h, func(s *types.Sink) (err error) {
		v, err = s.Bool(row, field)
		return err
	})
	return v, err
}

// StmtColumns returns the column names of the last result of h.
func (c *Client) StmtColumns(h Handle) ([]string, error) {
	var cols []string
	err := c.withSink(h, func(s *types.Sink) error {
		cols = make([]string, len(s.Cols))
		copy(cols, s.Cols)
		return nil
	})
	return cols, err
}

// StmtRowCount returns the rowcount of the last result of h.
func (c *Client) StmtRowCount(h Handle) (int64, error) {
	var n int64
	err := c.withSink(h, func(s *types.Sink) error {
		n = s.RowCount
		return nil
	})
	return n, err
}

// StmtErrorMessage returns the error message of the last execute of h, or ""
// when it succeeded.
func (c *Client) StmtErrorMessage(h Handle) (string, error) {
	var msg string
	err := c.withSink(h, func(s *types.Sink) error {
		msg = s.ErrorMessage()
		return nil
	})
	return msg, err
}

// StmtErrorCode returns the error code of the last execute of h, or 0.
func (c *Client) StmtErrorCode(h Handle) (int, error) {
	var code int
	err := c.withSink(h, func(s *types.Sink) error {
		code = s.ErrorCode()
		return nil
	})
	return code, err
}
