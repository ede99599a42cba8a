package osmpbf

import "fmt"

// FormatError reports a structural problem in a PBF container: broken
// framing, an unsupported compression, a schema violation, or inconsistent
// delta-coded arrays. All of these are fatal; the stream cannot be
// resynchronized past them.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("osmpbf: %s: %v", e.Msg, e.Err)
	}
	return "osmpbf: " + e.Msg
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}
