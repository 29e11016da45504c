package monitor

import "fmt"

// ConnectionError reports a websocket connection that could not be
// established, was lost, or was used after the monitor stopped.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("restream: connection error (%s): %v", e.URL, e.Err)
	}
	return fmt.Sprintf("restream: connection error (%s)", e.URL)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError reports an inbound frame that was not valid JSON. The
// connection stays open; the offending frame is kept for inspection.
type ParseError struct {
	Frame []byte
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("restream: invalid JSON frame: %.64s", e.Frame)
}
