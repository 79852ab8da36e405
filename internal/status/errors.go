package status

import "errors"

// ErrIO classifies any backing-store failure.
var ErrIO = errors.New("status store IO error")
