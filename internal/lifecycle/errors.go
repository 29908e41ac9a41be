package lifecycle

import "errors"

var (
	ErrTaskNameRequired = errors.New("cleanup task name is required")
	ErrTaskFuncRequired = errors.New("cleanup task function is required")
	ErrTaskExists       = errors.New("cleanup task already registered")
	ErrShutdownStarted  = errors.New("shutdown already started")
)
