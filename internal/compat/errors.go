package compat

import "errors"

// ErrNoUserAgent reports decider misuse: asking for a compatibility verdict
// without a parsed user agent is a programming error, not a data condition,
// and fails fast instead of producing a result.
var ErrNoUserAgent = errors.New("user agent info is required")
