package engine

import "errors"

var (
	// ErrEngineUnavailable marks every failure of an engine call: transport, auth, or a
	// backend error reply. Match with errors.Is.
	ErrEngineUnavailable = errors.New("search engine unavailable")
	// ErrUnknownDriver is returned by Registry.Open for names that were never registered.
	ErrUnknownDriver = errors.New("unknown search engine driver")
	// ErrUnsupportedFilter is returned by drivers for filters on fields they cannot
	// filter. It is a caller error and does not match ErrEngineUnavailable.
	ErrUnsupportedFilter = errors.New("unsupported engine filter")
)

// Op names used in Error for diagnostics.
const (
	OpOpen   = "open"
	OpSearch = "search"
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpFlush  = "flush"
)

// Error wraps a driver failure with the driver and operation names.
// errors.Is(err, ErrEngineUnavailable) holds for every Error.
type Error struct {
	Driver string
	Op     string
	Err    error
}

func (e *Error) Error() string { return e.Driver + " " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Is makes every Error match ErrEngineUnavailable.
func (e *Error) Is(target error) bool { return target == ErrEngineUnavailable }

// Wrap returns err as an *Error for driver and op. Nil stays nil and an existing
// *Error is returned unchanged.
func Wrap(driver, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Driver: driver, Op: op, Err: err}
}
