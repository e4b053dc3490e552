package model

import "github.com/zeromicro/go-zero/core/stores/sqlc"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = sqlc.ErrNotFound
