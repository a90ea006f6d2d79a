package sqlstore

import "errors"

var ErrClaimNotFound = errors.New("sqlstore: claim record not found")
