package alias

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360/turbologger/structs"
	"github.com/c360/turbologger/table"
)

// Conditions reported by the Store. Test with errors.Is.
var (
	// ErrAliasCollision is returned when an alias equals its target, shadows
	// an existing canonical path, or is already registered.
	ErrAliasCollision = errors.New("alias collision")
	// ErrTypeMismatch is returned when a path is accessed with a type other
	// than the one it is bound to.
	ErrTypeMismatch = table.ErrTypeMismatch
	// ErrMissingStrategy is returned when a record type has no descriptor.
	ErrMissingStrategy = structs.ErrMissingStrategy
	// ErrNoData is reported when a name is read before anything was
	// published to it.
	ErrNoData = errors.New("no data published yet")
	// ErrNotCanonical is reported when a path operation is given an alias.
	ErrNotCanonical = errors.New("not a canonical path")
)

// TypeMismatchError describes a rejected access.
type TypeMismatchError struct {
	Name      string // name used by the caller, may be an alias
	Path      string // canonical path
	Requested table.Type
	Bound     table.Type
}

func (e *TypeMismatchError) Error() string {
	if e.Name != "" && e.Name != e.Path {
		return fmt.Sprintf("alias %q of %q is bound to %s, not %s", e.Name, e.Path, e.Bound, e.Requested)
	}
	return fmt.Sprintf("%q is bound to %s, not %s", e.Path, e.Bound, e.Requested)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// Severity of a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is one reported failure.
type Diagnostic struct {
	Severity Severity
	Err      error
	Message  string
	Name     string
	Path     string
}

// Condition returns a short, stable label for the diagnostic's error.
func (d Diagnostic) Condition() string {
	switch {
	case errors.Is(d.Err, ErrAliasCollision):
		return "alias_collision"
	case errors.Is(d.Err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(d.Err, ErrMissingStrategy):
		return "missing_strategy"
	case errors.Is(d.Err, ErrNoData):
		return "no_data"
	case errors.Is(d.Err, ErrNotCanonical):
		return "not_canonical"
	default:
		return "table"
	}
}

// Reporter receives diagnostics. It is called without the Store lock held.
type Reporter func(Diagnostic)

// LogReporter returns a Reporter that logs warnings and errors to logger.
func LogReporter(logger *slog.Logger) Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d Diagnostic) {
		level := slog.LevelWarn
		if d.Severity == SeverityError {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, d.Message,
			"name", d.Name,
			"path", d.Path,
			"condition", d.Condition(),
			"error", d.Err)
	}
}

func errorDiag(name, path string, err error) Diagnostic {
	return Diagnostic{Severity: SeverityError, Err: err, Message: err.Error(), Name: name, Path: path}
}

func warnDiag(name, path string, err error) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Err: err, Message: err.Error(), Name: name, Path: path}
}
