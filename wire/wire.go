// Package wire builds request frames for the /_sql endpoint and parses the
// raw bytes read back from the socket into structured results.
//
// A request frame is a bare HTTP/1.1 request:
//
//	POST /_sql HTTP/1.1\r\n
//	Content-Length: <bytes of body>\r\n
//	\r\n
//	{"stmt":"...","args":[...]}
//
// No other headers are sent and chunked encoding is never used. A response is
// split once on the first blank line into its header block and a JSON body.
package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"github.com/tomyedwab/cratedb/errcodes"
	"github.com/tomyedwab/cratedb/types"
)

const (
	// Path is the SQL endpoint of a node.
	Path = "/_sql"

	requestLine = "POST " + Path + " HTTP/1.1\r\n"
)

var (
	headerSeparator = []byte("\r\n\r\n")
	detailPattern   = regexp.MustCompile(`\[(.*?)\]`)
)

// Decoded is a successfully decoded response.
type Decoded struct {
	Headers  string
	Body     string
	Response *types.Response
}

// EncodeRequest serializes stmt and args and wraps them in a request frame.
// The args key is omitted when args is empty.
func EncodeRequest(stmt string, args []any) ([]byte, error) {
	req := types.Request{Stmt: stmt}
	if len(args) > 0 {
		req.Args = args
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var frame bytes.Buffer
	frame.Grow(len(requestLine) + 32 + len(body))
	frame.WriteString(requestLine)
	frame.WriteString("Content-Length: ")
	frame.WriteString(strconv.Itoa(len(body)))
	frame.WriteString("\r\n\r\n")
	frame.Write(body)
	return frame.Bytes(), nil
}

// SplitFrame splits raw once on the first blank line. ok is false when the
// header block is not complete yet.
func SplitFrame(raw []byte) (headers, body []byte, ok bool) {
	return bytes.Cut(raw, headerSeparator)
}

// parseHeaders reads the MIME header lines that follow the status line.
func parseHeaders(headers []byte) textproto.MIMEHeader {
	_, rest, found := bytes.Cut(headers, []byte("\r\n"))
	if !found {
		return textproto.MIMEHeader{}
	}
	// ReadMIMEHeader needs the terminating blank line.
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(append(append([]byte{}, rest...), headerSeparator...))))
	h, err := r.ReadMIMEHeader()
	if err != nil && h == nil {
		return textproto.MIMEHeader{}
	}
	return h
}

// ContentLength returns the Content-Length announced in a response header
// block.
func ContentLength(headers []byte) (int, bool) {
	v := parseHeaders(headers).Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// KeepAlive reports whether the node will keep the connection open after this
// response. HTTP/1.0 responses and "Connection: close" end the connection.
func KeepAlive(headers []byte) bool {
	statusLine, _, _ := bytes.Cut(headers, []byte("\r\n"))
	conn := strings.ToLower(parseHeaders(headers).Get("Connection"))
	if bytes.HasPrefix(statusLine, []byte("HTTP/1.0")) {
		return conn == "keep-alive"
	}
	return conn != "close"
}

// DecodeResponse parses a complete raw response. Unparsable input yields a
// KindMalformedResponse error with code 0; a structured error body yields a
// KindServer error carrying the server code.
func DecodeResponse(raw []byte) (*Decoded, error) {
	headers, body, ok := SplitFrame(raw)
	if !ok {
		return nil, types.NewMalformedResponseError("Can't parse response body", fmt.Errorf("no header separator in %d byte response", len(raw)))
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, types.NewMalformedResponseError("Can't parse response body", fmt.Errorf("body is not a JSON object"))
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var resp types.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, types.NewMalformedResponseError("Can't parse response body", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, types.NewMalformedResponseError("Can't parse response body", fmt.Errorf("trailing data after JSON body"))
	}

	if resp.Error != nil {
		return nil, types.NewServerError(resp.Error.Code, ComposeServerMessage(resp.Error.Code, resp.Error.Message))
	}

	if resp.Cols == nil {
		resp.Cols = []string{}
	}
	for i, row := range resp.Rows {
		if len(row) != len(resp.Cols) {
			return nil, types.NewMalformedResponseError("Can't parse response body",
				fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(resp.Cols)))
		}
	}

	return &Decoded{Headers: string(headers), Body: string(body), Response: &resp}, nil
}

// ExtractDetail returns the first bracketed fragment of a server message,
// brackets included, or "" when there is none.
func ExtractDetail(message string) string {
	return detailPattern.FindString(message)
}

// ComposeServerMessage joins the catalog text for code with the detail
// fragment of the server message. Without a bracketed fragment the whole
// server message stands in for it.
func ComposeServerMessage(code int, message string) string {
	detail := ExtractDetail(message)
	if detail == "" {
		detail = strings.TrimSpace(message)
	}

	desc := errcodes.Description(code)
	switch {
	case desc != "" && detail != "":
		return desc + " " + detail
	case desc != "":
		return desc
	case detail != "":
		return detail
	default:
		return fmt.Sprintf("server error %d", code)
	}
}
