// Package client is a CrateDB client that talks to a single node over
// HTTP/1.1 written directly to a TCP socket.
//
// # Basic Usage
//
//	c, err := client.Open("crate.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	n, err := c.Execute(ctx, "SELECT id, title FROM docs WHERE id > ?", 10)
//	if err != nil {
//		log.Printf("query failed (%d): %s", c.ErrorCode(), c.ErrorMessage())
//		return
//	}
//	for i := 0; i < int(n); i++ {
//		title, _ := c.GetString(i, "title")
//		log.Println(title)
//	}
//
// Execute stores its result on the client's global sink; the Get* methods and
// ErrorMessage/ErrorCode read from it.
//
// # Statements
//
// A statement is a registered query with its own bound arguments and result:
//
//	stmt := c.Prepare("INSERT INTO docs (id, title) VALUES (?, ?)")
//	defer stmt.Close()
//
//	stmt.BindInt(1)
//	stmt.BindString("first")
//	if _, err := stmt.Execute(ctx); err != nil {
//		msg, _ := stmt.ErrorMessage()
//		log.Println(msg)
//	}
//
// Bound arguments are consumed by every execute, successful or not, so a
// statement can be rebound and run again. The same operations are available
// on plain handles (StmtInit, StmtBind, StmtExecute, ...). Using a handle
// after StmtClose returns an error of kind types.KindStatement.
//
// # Error Handling
//
// Every failing operation returns a *types.Error and records its code and
// message on the relevant sink:
//
//	if _, err := c.Execute(ctx, sql); err != nil {
//		switch {
//		case types.IsServerError(err):
//			// The node rejected the statement; ErrorCode() is the server code.
//		case types.IsTimeout(err):
//			// Connect, write or read exceeded the configured timeout.
//		case types.IsConnectionError(err):
//			// The next call reconnects.
//		}
//	}
//
// # Concurrency
//
// A Client may be shared between goroutines, but exchanges are serialised on
// its single connection and the global sink holds only the latest result.
package client
