// Package storage persists the processed-message set and the dispatch
// audit trail. Two drivers exist: a plain-file journal and an optional
// SQLite backend selected with the "sqlite" build tag.
package storage
