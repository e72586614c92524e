// Package driver implements database/sql/driver on top of the CrateDB client,
// so the client can be used through *sql.DB and libraries built on it such
// as sqlx.
//
// Usage:
//
//  1. Import the driver package. This registers the driver with the name "crate".
//     import _ "github.com/tomyedwab/cratedb/driver"
//
//  2. Open a database:
//     db, err := sql.Open("crate", "crate://127.0.0.1:4200?timeout=6s")
//
//     A bare "host:port" DSN is accepted as well, and an empty DSN connects to
//     127.0.0.1:4200 with default settings. To pass client options such as a
//     logger, build a Connector and use sql.OpenDB:
//
//     connector, err := driver.NewConnector(cfg, client.WithLogger(logger))
//     db := sql.OpenDB(connector)
//
//  3. Use the *sql.DB as usual. Placeholders are positional ("?" or "$1").
//
// Each driver connection owns one client.Client and therefore one socket;
// pooling is left to database/sql.
//
// Values:
//
// Arguments may be any standard driver value, plus slices and maps which are
// sent as arrays and objects. Result numbers are returned as int64 when
// integral and float64 otherwise; arrays and objects are returned as their
// JSON text.
//
// Limitations:
//
//   - Transactions are not supported; Begin returns ErrNoTransactions.
//   - LastInsertId is not supported; RowsAffected is the server rowcount.
//   - Named arguments are rejected.
//   - Results are read in full before the first row is returned.
package driver
