package transport

import (
	"context"
	"encoding/json"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/tomyedwab/cratedb/errcodes"
	"github.com/tomyedwab/cratedb/nodetest"
	"github.com/tomyedwab/cratedb/types"
	"github.com/tomyedwab/cratedb/wire"
)

func encode(t *testing.T, stmt string, args ...any) []byte {
	t.Helper()
	frame, err := wire.EncodeRequest(stmt, args)
	if err != nil {
		t.Fatalf("EncodeRequest returned error: %v", err)
	}
	return frame
}

func TestExecuteSuccess(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Static(nodetest.Result(
		[]string{"id", "name"},
		[][]any{{1, "one"}, {2, "two"}},
		2,
	)))
	c := newConn(t, s.Addr(), Options{})

	var sink types.Sink
	n, err := c.Execute(context.Background(), encode(t, "select id, name from t"), &sink)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if n != 2 || sink.RowCount != 2 {
		t.Errorf("rowcount = %d / %d", n, sink.RowCount)
	}
	if sink.Failed() {
		t.Errorf("sink has error: %+v", sink.Err)
	}
	if idx, ok := sink.ColNames["name"]; !ok || idx != 1 {
		t.Errorf("ColNames = %v", sink.ColNames)
	}
	if got, _ := sink.String(1, "name"); got != "two" {
		t.Errorf("String(1, name) = %q", got)
	}
	if !strings.HasPrefix(sink.Headers, "HTTP/1.1 200 OK") {
		t.Errorf("Headers = %q", sink.Headers)
	}
	if !strings.Contains(sink.Raw, `"rowcount":2`) {
		t.Errorf("Raw = %q", sink.Raw)
	}
	if c.State() != StateConnected {
		t.Errorf("State = %v", c.State())
	}

	nodetest.AssertStatement(t, s, 0, "select id, name from t")
}

func TestExecuteReusesConnection(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo())
	c := newConn(t, s.Addr(), Options{})

	var sink types.Sink
	for i := 0; i < 3; i++ {
		if _, err := c.Execute(context.Background(), encode(t, "select 1"), &sink); err != nil {
			t.Fatalf("Execute #%d returned error: %v", i+1, err)
		}
	}
	nodetest.AssertRequestCount(t, s, 3)
	nodetest.AssertConnections(t, s, 1)
}

func TestExecuteServerError(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Sequence(
		nodetest.Result([]string{"x"}, [][]any{{1}}, 1),
		nodetest.Failure(errcodes.UnknownTable, "TableUnknownException[Table 'doc.missing' unknown]"),
	))
	c := newConn(t, s.Addr(), Options{})

	var sink types.Sink
	if _, err := c.Execute(context.Background(), encode(t, "select 1"), &sink); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	n, err := c.Execute(context.Background(), encode(t, "select * from missing"), &sink)
	if n != -1 {
		t.Errorf("rowcount = %d, want -1", n)
	}
	if !types.IsServerError(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	want := "Unknown table. [Table 'doc.missing' unknown]"
	if sink.ErrorCode() != 4041 || sink.ErrorMessage() != want {
		t.Errorf("sink error = %d %q, want 4041 %q", sink.ErrorCode(), sink.ErrorMessage(), want)
	}
	if sink.Rows != nil || sink.Cols != nil || sink.ColNames != nil || sink.Raw != "" {
		t.Errorf("failed sink kept result fields: %+v", sink)
	}
	if c.State() != StateConnected {
		t.Errorf("server error changed state to %v", c.State())
	}
}

func TestExecuteMalformedResponse(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Static(nodetest.Raw(200, "this is not json")))
	c := newConn(t, s.Addr(), Options{})

	var sink types.Sink
	n, err := c.Execute(context.Background(), encode(t, "select 1"), &sink)
	if n != -1 || !types.IsMalformedResponse(err) {
		t.Fatalf("expected malformed response, got %d %v", n, err)
	}
	if sink.ErrorCode() != 0 || !strings.HasPrefix(sink.ErrorMessage(), "Can't parse response body") {
		t.Errorf("sink error = %d %q", sink.ErrorCode(), sink.ErrorMessage())
	}
	if c.State() != StateBroken {
		t.Errorf("State = %v, want broken", c.State())
	}
}

func TestExecuteWriteTimeout(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo(), nodetest.WithStall(nodetest.StallRead))
	c := newConn(t, s.Addr(), Options{Timeout: 200 * time.Millisecond})

	// Far more than the socket buffers of both ends can hold.
	frame := encode(t, strings.Repeat("x", 32<<20))

	var sink types.Sink
	start := time.Now()
	n, err := c.Execute(context.Background(), frame, &sink)
	if n != -1 || types.KindOf(err) != types.KindWriteTimeout {
		t.Fatalf("expected write_timeout, got %d %v", n, err)
	}
	if sink.ErrorCode() != int(syscall.ETIMEDOUT) {
		t.Errorf("ErrorCode = %d, want ETIMEDOUT", sink.ErrorCode())
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("write took %v", elapsed)
	}
	if c.State() != StateBroken {
		t.Errorf("State = %v, want broken", c.State())
	}
}

func TestExecuteReadTimeout(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo(), nodetest.WithStall(nodetest.StallRespond))
	c := newConn(t, s.Addr(), Options{Timeout: 200 * time.Millisecond})

	var sink types.Sink
	start := time.Now()
	n, err := c.Execute(context.Background(), encode(t, "select sleep(1000)"), &sink)
	if n != -1 || types.KindOf(err) != types.KindReadTimeout {
		t.Fatalf("expected read_timeout, got %d %v", n, err)
	}
	if !types.IsTimeout(err) {
		t.Error("IsTimeout = false")
	}
	if sink.ErrorCode() != int(syscall.ETIMEDOUT) {
		t.Errorf("ErrorCode = %d, want ETIMEDOUT", sink.ErrorCode())
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("read timed out after %v", elapsed)
	}
	if c.State() != StateBroken {
		t.Errorf("State = %v, want broken", c.State())
	}
}

func TestExecuteReconnectsAfterConnectionClose(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo(), nodetest.WithCloseAfterResponse())
	c := newConn(t, s.Addr(), Options{})

	var sink types.Sink
	for i := 0; i < 2; i++ {
		if _, err := c.Execute(context.Background(), encode(t, "select 1"), &sink); err != nil {
			t.Fatalf("Execute #%d returned error: %v", i+1, err)
		}
		if c.State() != StateBroken {
			t.Errorf("State after Connection: close = %v", c.State())
		}
	}
	nodetest.AssertConnections(t, s, 2)
}

func TestExecuteServerErrorWithConnectionClose(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Sequence(
		nodetest.Failure(errcodes.UnknownTable, "TableUnknownException[Table 'doc.missing' unknown]"),
		nodetest.Result([]string{"x"}, [][]any{{1}}, 1),
	), nodetest.WithCloseAfterResponse())
	c := newConn(t, s.Addr(), Options{Timeout: time.Second})

	var sink types.Sink
	if _, err := c.Execute(context.Background(), encode(t, "select * from missing"), &sink); !types.IsServerError(err) {
		t.Fatalf("expected server error, got %v", err)
	}
	if c.State() != StateBroken {
		t.Errorf("State after Connection: close = %v, want broken", c.State())
	}

	n, err := c.Execute(context.Background(), encode(t, "select 1"), &sink)
	if err != nil || n != 1 {
		t.Fatalf("Execute after server error = %d, %v", n, err)
	}
	nodetest.AssertConnections(t, s, 2)
}

func TestExecuteRecoversAfterDroppedConnection(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo())
	c := newConn(t, s.Addr(), Options{Timeout: time.Second})

	var sink types.Sink
	if _, err := c.Execute(context.Background(), encode(t, "select 1"), &sink); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	s.DropConnections()

	// The first exchange on the dead socket fails and is not retried.
	n, err := c.Execute(context.Background(), encode(t, "select 2"), &sink)
	if err == nil || n != -1 {
		t.Fatalf("expected failure on dropped connection, got %d %v", n, err)
	}
	if !types.IsConnectionError(err) {
		t.Errorf("expected connection error, got %v (%s)", err, types.KindOf(err))
	}
	if c.State() != StateBroken {
		t.Errorf("State = %v, want broken", c.State())
	}

	if _, err := c.Execute(context.Background(), encode(t, "select 3"), &sink); err != nil {
		t.Fatalf("Execute after reconnect returned error: %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("State = %v, want connected", c.State())
	}
	nodetest.AssertConnections(t, s, 2)
}

func TestExecuteAccumulatesSplitResponse(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo(), nodetest.WithChunkedWrites(300, 2*time.Millisecond))
	c := newConn(t, s.Addr(), Options{ReadBufferSize: 512})

	stmt := "select '" + strings.Repeat("ü", 2000) + "'"
	var sink types.Sink
	n, err := c.Execute(context.Background(), encode(t, stmt, "arg"), &sink)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("rowcount = %d", n)
	}
	if got, _ := sink.String(0, "stmt"); got != stmt {
		t.Errorf("echoed stmt has %d bytes, want %d", len(got), len(stmt))
	}
}

func TestExecuteWithoutContentLength(t *testing.T) {
	s := nodetest.NewServer(t, nodetest.Echo(), nodetest.WithoutContentLength())
	c := newConn(t, s.Addr(), Options{})

	var sink types.Sink
	if _, err := c.Execute(context.Background(), encode(t, "select 1"), &sink); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got, _ := sink.String(0, "stmt"); got != "select 1" {
		t.Errorf("stmt = %q", got)
	}
}

func TestExecuteConnectFailureFillsSink(t *testing.T) {
	c := newConn(t, unusedAddr(t), Options{Timeout: time.Second})

	sink := types.Sink{Rows: [][]any{{json.Number("1")}}, Cols: []string{"x"}}
	n, err := c.Execute(context.Background(), encode(t, "select 1"), &sink)
	if n != -1 || err == nil {
		t.Fatalf("expected failure, got %d %v", n, err)
	}
	if !sink.Failed() || sink.ErrorCode() != int(syscall.ECONNREFUSED) {
		t.Errorf("sink error = %+v", sink.Err)
	}
	if sink.Rows != nil || sink.Cols != nil {
		t.Error("failed exchange kept stale rows")
	}
}
