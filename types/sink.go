package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrRowOutOfRange is returned by sink accessors for a row index outside
	// the last result.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrUnknownColumn is returned by sink accessors for a column name that is
	// not part of the last result.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrTypeMismatch is returned when a value cannot be converted to the
	// requested Go type.
	ErrTypeMismatch = errors.New("value type mismatch")
)

// Sink receives the outcome of one exchange. It is overwritten by every
// exchange and is never partially updated: it either holds a full result or
// only an error.
type Sink struct {
	Headers  string         // Raw response header block
	Raw      string         // Raw response body
	Cols     []string       // Column names in result order
	ColNames map[string]int // Column name to index, rebuilt on every success
	RowCount int64
	Rows     [][]any
	Err      *ErrorInfo // Set only when the last exchange failed
}

// Fill stores a successful result.
func (s *Sink) Fill(headers, raw string, resp *Response) {
	cols := resp.Cols
	if cols == nil {
		cols = []string{}
	}
	colNames := make(map[string]int, len(cols))
	for i, name := range cols {
		colNames[name] = i
	}

	*s = Sink{
		Headers:  headers,
		Raw:      raw,
		Cols:     cols,
		ColNames: colNames,
		RowCount: resp.RowCount,
		Rows:     resp.Rows,
	}
}

// Fail discards any previous result and records only the error.
func (s *Sink) Fail(err error) {
	info := Info(err)
	*s = Sink{Err: &info}
}

// Failed reports whether the last exchange recorded an error.
func (s *Sink) Failed() bool {
	return s.Err != nil
}

// ErrorMessage returns the last error message, or "" after a success.
func (s *Sink) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

// ErrorCode returns the last error code, or 0 after a success.
func (s *Sink) ErrorCode() int {
	if s.Err == nil {
		return 0
	}
	return s.Err.Code
}

// Clone returns a copy that shares no slices or maps with s.
func (s *Sink) Clone() Sink {
	c := *s
	if s.Cols != nil {
		c.Cols = append([]string(nil), s.Cols...)
	}
	if s.ColNames != nil {
		c.ColNames = make(map[string]int, len(s.ColNames))
		for k, v := range s.ColNames {
			c.ColNames[k] = v
		}
	}
	if s.Rows != nil {
		c.Rows = make([][]any, len(s.Rows))
		for i, row := range s.Rows {
			c.Rows[i] = append([]any(nil), row...)
		}
	}
	if s.Err != nil {
		info := *s.Err
		c.Err = &info
	}
	return c
}

// Value returns the raw decoded value at row for the named column. Numbers
// are json.Number values.
func (s *Sink) Value(row int, field string) (any, error) {
	if row < 0 || row >= len(s.Rows) {
		return nil, fmt.Errorf("%w: %d (rows: %d)", ErrRowOutOfRange, row, len(s.Rows))
	}
	idx, ok := s.ColNames[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, field)
	}
	values := s.Rows[row]
	if idx >= len(values) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, field)
	}
	return values[idx], nil
}

// String returns the value as text. NULL is returned as "".
func (s *Sink) String(row int, field string) (string, error) {
	v, err := s.Value(row, field)
	if err != nil {
		return "", err
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("%w: column %q: %v", ErrTypeMismatch, field, err)
		}
		return string(b), nil
	}
}

// Long returns the value as a 64-bit integer. Fractional numbers are
// truncated and NULL is returned as 0.
func (s *Sink) Long(row int, field string) (int64, error) {
	v, err := s.Value(row, field)
	if err != nil {
		return 0, err
	}
	switch val := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: column %q: %v", ErrTypeMismatch, field, err)
		}
		return int64(f), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: column %q holds %T", ErrTypeMismatch, field, v)
	}
}

// Int returns the value as an int, failing when it does not fit.
func (s *Sink) Int(row int, field string) (int, error) {
	i, err := s.Long(row, field)
	if err != nil {
		return 0, err
	}
	if i > math.MaxInt || i < math.MinInt {
		return 0, fmt.Errorf("%w: column %q value %d overflows int", ErrTypeMismatch, field, i)
	}
	return int(i), nil
}

// Number returns the value as a float64. NULL is returned as 0.
func (s *Sink) Number(row int, field string) (float64, error) {
	v, err := s.Value(row, field)
	if err != nil {
		return 0, err
	}
	switch val := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: column %q: %v", ErrTypeMismatch, field, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: column %q holds %T", ErrTypeMismatch, field, v)
	}
}

// Bool returns the value as a bool. NULL is returned as false.
func (s *Sink) Bool(row int, field string) (bool, error) {
	v, err := s.Value(row, field)
	if err != nil {
		return false, err
	}
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	default:
		return false, fmt.Errorf("%w: column %q holds %T", ErrTypeMismatch, field, v)
	}
}
