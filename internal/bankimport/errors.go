package bankimport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrArtifactMissing    = errors.New("artifact missing")
	ErrUnrecognizedFormat = errors.New("unrecognized statement format")
	ErrParseFailed        = errors.New("statement could not be parsed")
	ErrTransientStorage   = errors.New("transient storage failure")
	ErrInvalidInput       = errors.New("invalid input")
)

// ImportError carries the failing operation, the import it concerns and,
// for state errors, what was expected versus found.
type ImportError struct {
	Op       string
	Kind     error
	ImportID string
	Expected string
	Found    string
	Msg      string
	Err      error
}

func (e *ImportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.Error())
	}
	if e.ImportID != "" {
		fmt.Fprintf(&b, " (import %s)", e.ImportID)
	}
	if e.Expected != "" || e.Found != "" {
		fmt.Fprintf(&b, " expected %s, found %s", e.Expected, e.Found)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ImportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func notFound(op, importID, msg string) error {
	return &ImportError{Op: op, Kind: ErrNotFound, ImportID: importID, Msg: msg}
}

func invalidState(op, importID, msg, expected string, found Status) error {
	return &ImportError{Op: op, Kind: ErrInvalidState, ImportID: importID, Msg: msg, Expected: expected, Found: string(found)}
}

// storageErr classifies a driver or artifact-store failure as transient,
// leaving already-typed errors untouched.
func storageErr(op, importID string, err error) error {
	if err == nil {
		return nil
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		return err
	}
	return &ImportError{Op: op, Kind: ErrTransientStorage, ImportID: importID, Err: err}
}

// Kind returns the sentinel an error belongs to, or nil when it is not one of
// ours.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidState, ErrArtifactMissing, ErrUnrecognizedFormat, ErrParseFailed, ErrTransientStorage, ErrInvalidInput} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
