package cluster

import "errors"

// ErrConfiguration marks invalid cluster wiring discovered at startup.
// Callers fail fast on it rather than degrading at runtime.
var ErrConfiguration = errors.New("configuration error")
