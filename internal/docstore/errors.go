package docstore

import "errors"

// ErrConflict signals that a conditional write lost a race: either the
// revision filter matched nothing or an insert hit the unique name index.
// Callers restart their read-merge-write cycle.
var ErrConflict = errors.New("docstore: concurrent modification")
