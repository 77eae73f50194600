// Package affinity pins the calling goroutine's OS thread to a single CPU.
package affinity

import (
	"errors"
)

// CPU pinning is not available on this platform.
var ErrUnsupported = errors.New("cpu affinity is not supported on this platform")
