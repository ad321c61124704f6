package hostbind

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeMismatch is wrapped by argument errors where the value has the
	// wrong kind, or is an object of an unrelated class.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnregisteredType is wrapped when a pointer parameter's Go type was
	// never registered as a class.
	ErrUnregisteredType = errors.New("unregistered type")

	// ErrNoOverload is wrapped by *OverloadError.
	ErrNoOverload = errors.New("no matching overload")

	// ErrConversion is returned when a handle cannot be built from a value
	// of the wrong structure, such as an array from a hash reference.
	ErrConversion = errors.New("conversion failed")

	// ErrScript is wrapped by *ScriptError.
	ErrScript = errors.New("script error")

	// ErrSessionActive is returned by New while another owning session is
	// open in the process.
	ErrSessionActive = errors.New("an owning interpreter session is already active")
)

// ArgumentError reports a stack argument that could not be read as the
// parameter's kind.
type ArgumentError struct {
	// Name is the fully qualified name of the called sub, when known.
	Name string
	// Pos is the 1-based argument position.
	Pos int
	// Expected describes the accepted kind, e.g. "an integer".
	Expected string
	// Err is ErrTypeMismatch or ErrUnregisteredType.
	Err error
}

func (e *ArgumentError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: expected argument %d to be %s", e.Name, e.Pos, e.Expected)
	}
	return fmt.Sprintf("expected argument %d to be %s", e.Pos, e.Expected)
}

func (e *ArgumentError) Unwrap() error {
	if e.Err == nil {
		return ErrTypeMismatch
	}
	return e.Err
}

// OverloadError is returned when no binding of an overloaded name accepts
// the call's arguments.
type OverloadError struct {
	Name       string
	Args       int
	Candidates []string
}

func (e *OverloadError) Error() string {
	return fmt.Sprintf("no overload of '%s' matched the %d argument(s), candidates:\n  %s",
		e.Name, e.Args, strings.Join(e.Candidates, "\n  "))
}

func (e *OverloadError) Unwrap() error { return ErrNoOverload }

// ScriptError carries an error raised by interpreter code.
type ScriptError struct {
	// Op is what was being run: a sub name, "eval" or a script path.
	Op  string
	Msg string
}

func (e *ScriptError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

func (e *ScriptError) Unwrap() error { return ErrScript }
