package lien

import "github.com/xraph/lien/id"

// ID is the identifier type for journal events and operations.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
