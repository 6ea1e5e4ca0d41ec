package db

import "errors"

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("db: key not found")

// Command names recorded in Error.
const (
	OpPing   = "PING"
	OpGet    = "GET"
	OpSet    = "SET"
	OpExpire = "EXPIRE"
)

// Error is a failed cache command.
type Error struct {
	Op  string
	Key string // empty for keyless commands
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
