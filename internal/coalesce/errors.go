package coalesce

import "errors"

// ErrCallPanicked is returned to every waiter when the shared function panicked.
var ErrCallPanicked = errors.New("coalesce: shared call panicked")
