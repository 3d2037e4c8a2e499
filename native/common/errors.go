package common

import "errors"

// ErrUnauthorized is shared by every native module that gates calls on a
// capability (admin, operator, accruer).
var ErrUnauthorized = errors.New("unauthorized")
