package types

// --- JSON structures for the /_sql endpoint ---

// Request is the body POSTed to /_sql.
type Request struct {
	Stmt string `json:"stmt"`
	Args []any  `json:"args,omitempty"` // Positional arguments, in placeholder order
}

// Response is the body returned by /_sql. Exactly one of Error or the result
// fields is meaningful.
type Response struct {
	Cols     []string         `json:"cols"`
	Rows     [][]any          `json:"rows"`
	RowCount int64            `json:"rowcount"`
	Duration float64          `json:"duration,omitempty"` // Server-side execution time in ms
	Error    *ServerErrorBody `json:"error,omitempty"`
}

// ServerErrorBody is the structured error reported by the node.
type ServerErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorInfo is the code/message pair exposed to callers through the last-error
// accessors.
type ErrorInfo struct {
	Code    int
	Message string
}
