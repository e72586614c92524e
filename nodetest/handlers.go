package nodetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tomyedwab/cratedb/types"
)

// Result builds a successful reply in the node's result format.
func Result(cols []string, rows [][]any, rowCount int64) Reply {
	if cols == nil {
		cols = []string{}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return jsonReply(http.StatusOK, types.Response{
		Cols:     cols,
		Rows:     rows,
		RowCount: rowCount,
		Duration: 1.5,
	})
}

// Failure builds an error reply. The HTTP status is derived from the code
// the way the node does it (4041 is sent with 404).
func Failure(code int, message string) Reply {
	return jsonReply(code/10, types.Response{
		Error: &types.ServerErrorBody{Code: code, Message: message},
	})
}

// Raw builds a reply with an arbitrary body.
func Raw(status int, body string) Reply {
	return Reply{Status: status, Body: []byte(body)}
}

func jsonReply(status int, resp types.Response) Reply {
	body, err := json.Marshal(resp)
	if err != nil {
		return Raw(http.StatusInternalServerError, fmt.Sprintf("failed to marshal reply: %v", err))
	}
	return Reply{Status: status, Body: body}
}

// Static answers every request with the same reply.
func Static(reply Reply) Handler {
	return func(*types.Request) Reply {
		return reply
	}
}

// Sequence answers requests with replies in order and repeats the last one
// once they run out.
func Sequence(replies ...Reply) Handler {
	var (
		mu   sync.Mutex
		next int
	)
	return func(*types.Request) Reply {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return Failure(5000, "SQLActionException[no reply configured]")
		}
		r := replies[min(next, len(replies)-1)]
		next++
		return r
	}
}

// Echo answers with a single row holding the received statement and its
// arguments.
func Echo() Handler {
	return func(req *types.Request) Reply {
		args := req.Args
		if args == nil {
			args = []any{}
		}
		return Result([]string{"stmt", "args"}, [][]any{{req.Stmt, args}}, 1)
	}
}
