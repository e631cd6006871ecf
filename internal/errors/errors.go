// Package errors classifies failures by what they mean for a run. Only parse
// failures are commit-level: the commit goes to outstanding and the walk
// continues. Every other kind stops the command and selects its exit status.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is the failure category
type Kind string

const (
	KindConfig      Kind = "config"      // invalid configuration or arguments
	KindTransport   Kind = "transport"   // repository clone/fetch or local git failure
	KindParse       Kind = "parse"       // unreadable external tool output
	KindData        Kind = "data"        // missing or corrupt ledger
	KindConsistency Kind = "consistency" // accounting invariant broken
	KindFileSystem  Kind = "filesystem"
	KindInternal    Kind = "internal"
)

// Exit statuses reported by the CLI. Anything unclassified exits 1.
const (
	ExitFailure     = 1
	ExitConfig      = 2
	ExitNoLedger    = 3
	ExitTransport   = 4
	ExitConsistency = 5
)

// Error is a classified failure with structured fields for logging
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

// WithField attaches a structured field and returns e
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// Wrap classifies err. A nil err stays nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

func ConfigError(message string) *Error {
	return &Error{Kind: KindConfig, Message: message}
}

func ConfigErrorf(format string, args ...interface{}) *Error {
	return ConfigError(fmt.Sprintf(format, args...))
}

func TransportErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindTransport, fmt.Sprintf(format, args...))
}

// ParseError marks a report that could not be understood. It never stops a run.
func ParseError(err error, message string) *Error {
	return Wrap(err, KindParse, message)
}

func DataErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindData, fmt.Sprintf(format, args...))
}

func ConsistencyErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...)}
}

func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindFileSystem, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsFatal reports whether err must stop the run. Unclassified errors,
// including context cancellation, are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindParse
}

// FieldsOf merges the structured fields along err's chain, outermost last
func FieldsOf(err error) map[string]interface{} {
	fields := make(map[string]interface{})
	var chain []*Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			chain = append(chain, e)
		}
		err = stderrors.Unwrap(err)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].Fields {
			fields[k] = v
		}
	}
	if len(chain) > 0 {
		fields["error_kind"] = string(chain[0].Kind)
	}
	return fields
}

// ExitCode maps err to the CLI exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitConfig
	case KindData:
		return ExitNoLedger
	case KindTransport:
		return ExitTransport
	case KindConsistency:
		return ExitConsistency
	default:
		return ExitFailure
	}
}
