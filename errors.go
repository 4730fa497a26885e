package matchgo

import "errors"

// ErrMissingPath is returned by New when a required file path is empty.
var ErrMissingPath = errors.New("matchgo: missing required path")
