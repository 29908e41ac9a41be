package config

import "errors"

// Validation errors for server entries. The messages are shown to users
// verbatim by the connection test.
var (
	ErrCommandRequired = errors.New("Command is required")
	ErrArgsNotArray    = errors.New("Args must be an array")
)
