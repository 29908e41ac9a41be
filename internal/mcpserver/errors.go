package mcpserver

import "errors"

var (
	// ErrProcessExited is returned when the server process dies while a
	// request is outstanding.
	ErrProcessExited = errors.New("server process exited")

	// ErrMalformedToolList is returned when a server advertises a tool
	// without a name.
	ErrMalformedToolList = errors.New("malformed tool list")
)
