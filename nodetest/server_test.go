package nodetest

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/tomyedwab/cratedb/types"
	"github.com/tomyedwab/cratedb/wire"
)

func roundTrip(t *testing.T, nc net.Conn, br *bufio.Reader, stmt string, args []any) (*http.Response, []byte) {
	t.Helper()
	frame, err := wire.EncodeRequest(stmt, args)
	if err != nil {
		t.Fatalf("EncodeRequest returned error: %v", err)
	}
	if _, err := nc.Write(frame); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, body
}

func TestServerEcho(t *testing.T) {
	s := NewServer(t, Echo(), WithLogger(zaptest.NewLogger(t)))

	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer nc.Close()
	br := bufio.NewReader(nc)

	// Two requests on one connection.
	for _, stmt := range []string{"select 1", "select 2"} {
		resp, body := roundTrip(t, nc, br, stmt, []any{"a", 1})
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d", resp.StatusCode)
		}
		if resp.ContentLength != int64(len(body)) {
			t.Errorf("ContentLength = %d, body %d bytes", resp.ContentLength, len(body))
		}
		var got types.Response
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if len(got.Rows) != 1 || got.Rows[0][0] != stmt {
			t.Errorf("unexpected rows: %v", got.Rows)
		}
	}

	AssertRequestCount(t, s, 2)
	AssertStatement(t, s, 1, "select 2")
	AssertConnections(t, s, 1)

	reqs := s.Requests()
	if reqs[0].Method != http.MethodPost || reqs[0].Path != wire.Path {
		t.Errorf("unexpected request line: %s %s", reqs[0].Method, reqs[0].Path)
	}
	if reqs[0].ID == "" || reqs[0].ID == reqs[1].ID {
		t.Errorf("request ids not unique: %q %q", reqs[0].ID, reqs[1].ID)
	}
	if n, ok := reqs[0].Request.Args[1].(json.Number); !ok || n.String() != "1" {
		t.Errorf("numeric arg decoded as %T %v", reqs[0].Request.Args[1], reqs[0].Request.Args[1])
	}
}

func TestServerInvalidBody(t *testing.T) {
	s := NewServer(t, Echo())

	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer nc.Close()

	if _, err := io.WriteString(nc, "POST /_sql HTTP/1.1\r\nContent-Length: 3\r\n\r\nnot"); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(nc), nil)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}
}

func TestServerCloseAfterResponse(t *testing.T) {
	s := NewServer(t, Static(Result([]string{"x"}, [][]any{{1}}, 1)), WithCloseAfterResponse())

	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer nc.Close()
	br := bufio.NewReader(nc)

	resp, _ := roundTrip(t, nc, br, "select 1", nil)
	if resp.Header.Get("Connection") != "close" {
		t.Errorf("Connection header = %q", resp.Header.Get("Connection"))
	}

	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := br.ReadByte(); err != io.EOF {
		t.Errorf("expected EOF after response, got %v", err)
	}
}

func TestServerChunkedWrites(t *testing.T) {
	s := NewServer(t, Echo(), WithChunkedWrites(7, time.Millisecond))

	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer nc.Close()

	_, body := roundTrip(t, nc, bufio.NewReader(nc), "select 'chunked'", nil)
	var got types.Response
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Failed to decode reassembled body: %v", err)
	}
}

func TestSequence(t *testing.T) {
	h := Sequence(Raw(200, "first"), Raw(200, "second"))
	for _, want := range []string{"first", "second", "second"} {
		if got := string(h(&types.Request{}).Body); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestFailureStatus(t *testing.T) {
	tests := []struct {
		code   int
		status int
	}{
		{code: 4000, status: 400},
		{code: 4041, status: 404},
		{code: 4091, status: 409},
		{code: 5000, status: 500},
	}

	for _, tt := range tests {
		if got := Failure(tt.code, "x").Status; got != tt.status {
			t.Errorf("Failure(%d).Status = %d, want %d", tt.code, got, tt.status)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Start(Echo(), WithStall(StallRead))
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	nc, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer nc.Close()

	done := make(chan struct{})
	go func() {
		s.Close()
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while a connection was stalled")
	}
}
