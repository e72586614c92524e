package nodetest

import (
	"testing"
)

// AssertRequestCount fails the test unless the server received exactly n
// requests.
func AssertRequestCount(t *testing.T, s *Server, n int) {
	t.Helper()
	if got := len(s.Requests()); got != n {
		t.Errorf("Expected %d requests, got %d", n, got)
	}
}

// AssertStatement fails the test unless request i carried stmt.
func AssertStatement(t *testing.T, s *Server, i int, stmt string) {
	t.Helper()
	reqs := s.Requests()
	if i >= len(reqs) {
		t.Errorf("Expected request %d, only %d received", i, len(reqs))
		return
	}
	if reqs[i].Request.Stmt != stmt {
		t.Errorf("Request %d: expected stmt %q, got %q", i, stmt, reqs[i].Request.Stmt)
	}
}

// AssertConnections fails the test unless the server accepted exactly n
// connections.
func AssertConnections(t *testing.T, s *Server, n int) {
	t.Helper()
	if got := s.Accepted(); got != n {
		t.Errorf("Expected %d connections, got %d", n, got)
	}
}
