package textproc

import "errors"

// errOverflow is returned when input exceeds the processor's size limit.
// Callers detect it with IsOverflow and must drop the whole record.
var errOverflow = errors.New("processor overflow")

// IsOverflow reports whether err is an overflow-style processor failure.
// Such failures mark the entire record unreadable; they are never partial.
func IsOverflow(err error) bool {
	return errors.Is(err, errOverflow)
}
