package flowlog

import (
	"errors"
	"fmt"
)

// ErrPersistence is matched by every error returned from Append.
var ErrPersistence = errors.New("flow record not persisted")

// PersistenceError reports why a record could not be appended to the flow log.
// Op is one of "encode", "open" or "write".
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("flowlog: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("flowlog: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
