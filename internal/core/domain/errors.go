package domain

import "errors"

// ErrLockHeld is returned by chain lockers when another run owns the chain.
var ErrLockHeld = errors.New("lock held by another run")
