package client

import "context"

// Stmt wraps a statement handle with methods, for callers that prefer an
// object to the handle API. A Stmt is not safe for concurrent use.
type Stmt struct {
	c *Client
	h Handle
}

// Prepare registers a statement with text as its query. Nothing is sent to
// the node until Execute.
func (c *Client) Prepare(text string) *Stmt {
	h := c.StmtInit()
	_ = c.StmtQuery(h, text) // Cannot fail on a fresh handle
	return &Stmt{c: c, h: h}
}

// Handle returns the underlying registry handle.
func (s *Stmt) Handle() Handle { return s.h }

// Query replaces the query text.
func (s *Stmt) Query(text string) error { return s.c.StmtQuery(s.h, text) }

// Bind appends an argument of any JSON-encodable type.
func (s *Stmt) Bind(v any) error { return s.c.StmtBind(s.h, v) }

// BindInt appends an integer argument.
func (s *Stmt) BindInt(v int) error { return s.Bind(v) }

// BindLong appends a 64-bit integer argument.
func (s *Stmt) BindLong(v int64) error { return s.Bind(v) }

// BindNumber appends a floating point argument.
func (s *Stmt) BindNumber(v float64) error { return s.Bind(v) }

// BindString appends a text argument.
func (s *Stmt) BindString(v string) error { return s.Bind(v) }

// BindBool appends a boolean argument.
func (s *Stmt) BindBool(v bool) error { return s.Bind(v) }

// BindNull appends a null argument.
func (s *Stmt) BindNull() error { return s.Bind(nil) }

// BindArray appends its arguments as a single array argument.
func (s *Stmt) BindArray(v ...any) error { return s.Bind(v) }

// Execute runs the statement with the pending arguments, then clears them.
func (s *Stmt) Execute(ctx context.Context) (int64, error) {
	return s.c.StmtExecute(ctx, s.h)
}

// Close unregisters the statement.
func (s *Stmt) Close() error { return s.c.StmtClose(s.h) }

// GetValue returns the raw decoded value of field in row of the last result.
func (s *Stmt) GetValue(row int, field string) (any, error) {
	return s.c.StmtGetValue(s.h, row, field)
}

// GetString returns field in row of the last result as text.
func (s *Stmt) GetString(row int, field string) (string, error) {
	return s.c.StmtGetString(s.h, row, field)
}

// GetInt returns field in row of the last result as an int.
func (s *Stmt) GetInt(row int, field string) (int, error) {
	return s.c.StmtGetInt(s.h, row, field)
}

// GetLong returns field in row of the last result as an int64.
func (s *Stmt) GetLong(row int, field string) (int64, error) {
	return s.c.StmtGetLong(s.h, row, field)
}

// GetNumber returns field in row of the last result as a float64.
func (s *Stmt) GetNumber(row int, field string) (float64, error) {
	return s.c.StmtGetNumber(s.h, row, field)
}

// GetBool returns field in row of the last result as a bool.
func (s *Stmt) GetBool(row int, field string) (bool, error) {
	return s.c.StmtGetBool(s.h, row, field)
}

// Columns returns the column names of the last result.
func (s *Stmt) Columns() ([]string, error) { return s.c.StmtColumns(s.h) }

// ErrorMessage returns the error message of the last execute.
func (s *Stmt) ErrorMessage() (string, error) { return s.c.StmtErrorMessage(s.h) }

// ErrorCode returns the error code of the last execute.
func (s *Stmt) ErrorCode() (int, error) { return s.c.StmtErrorCode(s.h) }
