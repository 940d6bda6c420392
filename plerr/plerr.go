// Package plerr defines the failure kinds a bridged function call can end
// with, and maps them onto the SQLSTATE codes the host engine reports.
//
// Kinds are sentinel errors. Components attach a kind with [Wrap], [Newf] or
// [Mark]; callers test for it with errors.Is:
//
//	if errors.Is(err, plerr.ErrNotFound) { ... }
package plerr

import (
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

var (
	ErrNotFound                = errors.New("function not found")
	ErrMissingSource           = errors.New("function has no source")
	ErrMalformedSource         = errors.New("malformed function source")
	ErrUnsupportedArgumentType = errors.New("unsupported argument type")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrTempFile                = errors.New("temporary file error")
	ErrInterpreterLaunch       = errors.New("interpreter launch failed")
	ErrInterpreterExecution    = errors.New("interpreter execution failed")
	ErrResultDecode            = errors.New("result decode failed")
	ErrTimeout                 = errors.New("timeout")
	ErrTriggerUnsupported      = errors.New("trigger functions are not supported")
)

// kinds is ordered most specific first; KindOf returns the first match.
var kinds = []struct {
	kind error
	code pq.ErrorCode
}{
	{ErrTimeout, "57014"},
	{ErrNotFound, "42883"},
	{ErrMissingSource, "42P13"},
	{ErrMalformedSource, "42P13"},
	{ErrUnsupportedArgumentType, "42804"},
	{ErrInvalidArgument, "22023"},
	{ErrTempFile, "58030"},
	{ErrInterpreterLaunch, "58000"},
	{ErrInterpreterExecution, "38000"},
	{ErrResultDecode, "39000"},
	{ErrTriggerUnsupported, "0A000"},
}

// Newf creates an error of the given kind. The kind's message is appended to
// the formatted message.
func Newf(kind error, format string, args ...any) error {
	return errors.Wrapf(kind, format, args...)
}

// Wrap annotates err with msg and marks it with kind, keeping err as the cause.
func Wrap(err error, kind error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "%s: %s", msg, kind), kind)
}

// Mark attaches kind to err without changing its message.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, kind)
}

// WithDetail attaches a diagnostic detail (for example captured interpreter
// output) that is reported to the caller but is not part of the message.
func WithDetail(err error, detail string) error {
	if err == nil || detail == "" {
		return err
	}
	return errors.WithDetail(err, detail)
}

// Details returns every detail attached to err, outermost first.
func Details(err error) []string {
	return errors.GetAllDetails(err)
}

// KindOf returns the sentinel kind of err, or nil if err carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.kind
		}
	}
	return nil
}

// SQLState returns the SQLSTATE the host engine should report for err.
// Errors without a kind map to internal_error (XX000).
func SQLState(err error) pq.ErrorCode {
	kind := KindOf(err)
	for _, k := range kinds {
		if k.kind == kind {
			return k.code
		}
	}
	return "XX000"
}
