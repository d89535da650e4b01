package adapter

import (
	"bufio"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"blinkdb/internal/engine"
)

// commandCaser folds a command verb to upper case the Unicode-correct way,
// so a client that sends "get" or "Get" is treated the same as "GET".
var commandCaser = cases.Upper(language.Und)

// dispatch executes one decoded request against e and writes its RESP
// reply, per spec.md §6's command table.
func dispatch(e *engine.Engine, args []string, w *bufio.Writer) error {
	if len(args) == 0 {
		return writeError(w, "ERR empty command")
	}
	switch commandCaser.String(args[0]) {
	case "SET":
		return dispatchSet(e, args, w)
	case "GET":
		return dispatchGet(e, args, w)
	case "DEL":
		return dispatchDel(e, args, w)
	case "SYNC":
		return dispatchSync(e, w)
	case "PING":
		return writeSimpleString(w, "PONG")
	default:
		return writeError(w, fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
}

func dispatchSet(e *engine.Engine, args []string, w *bufio.Writer) error {
	if len(args) != 3 {
		return writeError(w, "ERR wrong number of arguments for 'set'")
	}
	if _, err := e.Set(args[1], args[2]); err != nil {
		return writeError(w, "ERR "+err.Error())
	}
	return writeSimpleString(w, "OK")
}

func dispatchGet(e *engine.Engine, args []string, w *bufio.Writer) error {
	if len(args) != 2 {
		return writeError(w, "ERR wrong number of arguments for 'get'")
	}
	v, found, err := e.Get(args[1])
	if err != nil {
		return writeError(w, "ERR "+err.Error())
	}
	if !found {
		return writeNullBulkString(w)
	}
	return writeBulkString(w, v)
}

func dispatchDel(e *engine.Engine, args []string, w *bufio.Writer) error {
	if len(args) != 2 {
		return writeError(w, "ERR wrong number of arguments for 'del'")
	}
	ok, err := e.Del(args[1])
	if err != nil || !ok {
		return writeInteger(w, 0)
	}
	return writeInteger(w, 1)
}

func dispatchSync(e *engine.Engine, w *bufio.Writer) error {
	if err := e.Sync(); err != nil {
		return writeError(w, "ERR "+err.Error())
	}
	return writeSimpleString(w, "OK")
}
