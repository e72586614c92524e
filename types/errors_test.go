package types

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := NewErrorWithCause(KindSocketIO, 0, "Error reading data from crate server", cause)
	if got := err.Error(); got != "Error reading data from crate server: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if err.Code != 0 {
		t.Errorf("expected code 0 for a cause without errno, got %d", err.Code)
	}
}

func TestErrnoExtraction(t *testing.T) {
	cause := fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
	err := NewErrorWithCause(KindSocketIO, 0, "connect failed", cause)
	if err.Code != int(syscall.ECONNREFUSED) {
		t.Errorf("Code = %d, want %d", err.Code, int(syscall.ECONNREFUSED))
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		kind       Kind
		timeout    bool
		connection bool
		server     bool
		malformed  bool
		statement  bool
	}{
		{kind: KindAddressResolution, connection: true},
		{kind: KindConnectTimeout, timeout: true, connection: true},
		{kind: KindWriteTimeout, timeout: true, connection: true},
		{kind: KindReadTimeout, timeout: true, connection: true},
		{kind: KindSocketIO, connection: true},
		{kind: KindMalformedResponse, malformed: true},
		{kind: KindServer, server: true},
		{kind: KindStatement, statement: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.kind, 0, "x"))
			if IsTimeout(err) != tt.timeout {
				t.Errorf("IsTimeout = %v", !tt.timeout)
			}
			if IsConnectionError(err) != tt.connection {
				t.Errorf("IsConnectionError = %v", !tt.connection)
			}
			if IsServerError(err) != tt.server {
				t.Errorf("IsServerError = %v", !tt.server)
			}
			if IsMalformedResponse(err) != tt.malformed {
				t.Errorf("IsMalformedResponse = %v", !tt.malformed)
			}
			if IsStatementError(err) != tt.statement {
				t.Errorf("IsStatementError = %v", !tt.statement)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	if info := Info(nil); info != (ErrorInfo{}) {
		t.Errorf("Info(nil) = %+v", info)
	}
	if info := Info(errors.New("plain")); info.Code != 0 || info.Message != "plain" {
		t.Errorf("Info(plain) = %+v", info)
	}
	info := Info(NewServerError(4093, "A table with the same name exists already. [c_test_table1]"))
	if info.Code != 4093 || info.Message != "A table with the same name exists already. [c_test_table1]" {
		t.Errorf("Info(server) = %+v", info)
	}
}

func TestKindString(t *testing.T) {
	if KindReadTimeout.String() != "read_timeout" {
		t.Errorf("unexpected name %q", KindReadTimeout.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unexpected name %q", Kind(99).String())
	}
}
