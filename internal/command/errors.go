package command

import (
	"errors"
	"fmt"
)

// ErrCustomCommand indicates the lock file header was written by a user-supplied
// command rather than by pip-compile itself.
var ErrCustomCommand = errors.New("custom compile command")

// CustomCommandError reports a header that cannot be trusted for replay.
type CustomCommandError struct {
	// Command is the first token of the recorded command line.
	Command string
}

// Error returns the error message.
func (e *CustomCommandError) Error() string {
	return fmt.Sprintf("detected custom command %q, header modified or set by CUSTOM_COMPILE_COMMAND", e.Command)
}

// Is reports whether this error matches the target.
// CustomCommandError matches ErrCustomCommand to allow sentinel-style error checking.
func (e *CustomCommandError) Is(target error) bool {
	return target == ErrCustomCommand
}
