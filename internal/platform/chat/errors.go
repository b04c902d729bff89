package chat

import "errors"

// ErrNotFound marks a channel, member or message that no longer exists on the
// platform. Callers treat it as already-resolved, not fatal.
var ErrNotFound = errors.New("chat: not found")
