// Package dbdriver provides key-value stores backing the simulated drives:
// an in-memory mock and a persistent buntdb database.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package dbdriver

import (
	"fmt"
	"strings"
)

// ## Collection ##
//   The collection is a key prefix: one per drive position, plus one for
//   array metadata.
// ## List ##
//   An empty pattern lists all keys of the collection; otherwise the pattern
//   is a key prefix.
// ## Errors ##
//   A driver converts its native "not found" into ErrNotFound.

const CollectionSepa = "##"

type (
	Driver interface {
		// A driver syncs data with local drives on close
		Close() error
		// Write an object (marshaled as JSON)
		Set(collection, key string, object any) error
		// Read an object written by Set
		Get(collection, key string, object any) error
		SetString(collection, key, data string) error
		GetString(collection, key string) (string, error)
		Delete(collection, key string) error
		// Delete all keys of a collection
		DeleteCollection(collection string) error
		// Return sorted keys of a collection
		List(collection, pattern string) ([]string, error)
	}

	ErrNotFound struct {
		collection string
		key        string
	}
)

func makePath(collection, key string) string { return collection + CollectionSepa + key }

// Extract collection and key names from full key path
func ParsePath(path string) (string, string) {
	pos := strings.Index(path, CollectionSepa)
	if pos < 0 {
		return path, ""
	}
	return path[:pos], path[pos+len(CollectionSepa):]
}

func NewErrNotFound(collection, key string) *ErrNotFound {
	return &ErrNotFound{collection: collection, key: key}
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.collection, e.key)
}

func IsErrNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
