package taskgrid

import "github.com/taskgrid/taskgrid/id"

// ID is the primary identifier type for all TaskGrid entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
