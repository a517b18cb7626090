package kernel

import "errors"

// ErrExtrinsicCollision is returned by New when a Config names a
// collaborator extrinsic whose registration fails against the frozen
// table (duplicate module/field pair with a hardcoded "redshirt" import).
var ErrExtrinsicCollision = errors.New("kernel: collaborator extrinsic collides with a hardcoded import")
