package valueflow

import "github.com/xraph/valueflow/id"

// ID is the primary identifier type for all valueflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
