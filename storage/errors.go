package storage

import "errors"

// ErrSchemaMismatch is returned (wrapped) when an environment's stored
// schema_version record does not equal SchemaVersion. The index package
// treats this as fatal rather than attempting any migration.
var ErrSchemaMismatch = errors.New("storage: schema version mismatch")

// ErrNotFound reports an absent key. The Tx readers in this package do
// not return it: they return nil or a zero etag for an absent key.
var ErrNotFound = errors.New("storage: key not found")
