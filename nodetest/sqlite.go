package nodetest

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/cratedb/errcodes"
	"github.com/tomyedwab/cratedb/types"
)

// SQLite answers requests by running them against db, so tests can create
// tables, insert and select as they would against a node. SQLite errors are
// mapped onto the closest node error codes.
func SQLite(db *sqlx.DB) Handler {
	return func(req *types.Request) Reply {
		args := sqliteArgs(req.Args)
		stmt := strings.TrimSpace(req.Stmt)

		if returnsRows(stmt) {
			return querySQLite(db, stmt, args)
		}

		res, err := db.Exec(stmt, args...)
		if err != nil {
			return sqliteFailure(err)
		}
		if isDDL(stmt) {
			// The node reports one row for any DDL statement.
			return Result(nil, nil, 1)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return sqliteFailure(err)
		}
		return Result(nil, nil, n)
	}
}

func querySQLite(db *sqlx.DB, stmt string, args []any) Reply {
	rows, err := db.Queryx(stmt, args...)
	if err != nil {
		return sqliteFailure(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return sqliteFailure(err)
	}

	out := [][]any{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return sqliteFailure(err)
		}
		for i, v := range vals {
			switch v := v.(type) {
			case []byte:
				vals[i] = string(v)
			case time.Time:
				vals[i] = v.Format(time.RFC3339Nano)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return sqliteFailure(err)
	}
	return Result(cols, out, int64(len(out)))
}

// sqliteArgs turns decoded JSON numbers back into Go numbers for binding.
func sqliteArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out[i] = n
			} else if f, err := v.Float64(); err == nil {
				out[i] = f
			} else {
				out[i] = v.String()
			}
		case []any, map[string]any:
			b, _ := json.Marshal(v)
			out[i] = string(b)
		default:
			out[i] = v
		}
	}
	return out
}

func firstKeyword(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimLeft(fields[0], "("))
}

func returnsRows(stmt string) bool {
	switch firstKeyword(stmt) {
	case "SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN":
		return true
	}
	return strings.Contains(strings.ToUpper(stmt), " RETURNING ")
}

func isDDL(stmt string) bool {
	switch firstKeyword(stmt) {
	case "CREATE", "DROP", "ALTER":
		return true
	}
	return false
}

// sqliteFailure maps a SQLite error onto a node error reply. The SQLite
// message becomes the bracketed detail, as the node formats its exceptions.
func sqliteFailure(err error) Reply {
	msg := err.Error()
	code, exception := classifySQLite(err)
	return Failure(code, exception+"["+msg+"]")
}

func classifySQLite(err error) (int, string) {
	msg := err.Error()
	var se sqlite3.Error
	if errors.As(err, &se) {
		msg = se.Error()
		if se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return errcodes.DuplicatePrimaryKey, "DuplicateKeyException"
		}
	}

	switch {
	case strings.Contains(msg, "no such table"):
		return errcodes.UnknownTable, "TableUnknownException"
	case strings.Contains(msg, "no such column"):
		return errcodes.UnknownColumn, "ColumnUnknownException"
	case strings.Contains(msg, "already exists"):
		return errcodes.TableAlreadyExists, "TableAlreadyExistsException"
	case strings.Contains(msg, "syntax error"), strings.Contains(msg, "incomplete input"):
		return errcodes.InvalidSyntax, "SQLParseException"
	default:
		return errcodes.UnhandledServerError, "SQLActionException"
	}
}
