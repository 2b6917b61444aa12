package usage

import "errors"

// ErrLimitReached indicates the user exhausted their monthly analysis quota.
var ErrLimitReached = errors.New("limit reached")
