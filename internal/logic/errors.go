package logic

import (
	"errors"
	"fmt"
)

// Failure classes. None of them is fatal to the control loop.
var (
	// ErrSensorRead marks a NaN, out-of-range or unreadable sensor value.
	ErrSensorRead = errors.New("sensor read error")

	// ErrTransport marks a failed request or a non-success status.
	ErrTransport = errors.New("transport error")

	// ErrMalformedResponse marks an unparseable or incomplete response body.
	// It also matches ErrTransport.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrTransport)
)
