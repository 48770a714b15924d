package corpus

import (
	"errors"
	"strings"
)

// keySeparator joins key parts in storage. It cannot appear inside a part.
const keySeparator = "\x1f"

// DocumentID is an ordered composite primary key.
type DocumentID []string

// NewDocumentID builds an identifier from its parts.
func NewDocumentID(parts ...string) DocumentID {
	id := make(DocumentID, len(parts))
	copy(id, parts)
	return id
}

// ParseKey reverses Key.
func ParseKey(key string) DocumentID {
	if key == "" {
		return nil
	}
	return DocumentID(strings.Split(key, keySeparator))
}

// Key is the storage form of the identifier.
func (id DocumentID) Key() string {
	return strings.Join(id, keySeparator)
}

// String renders the identifier for humans.
func (id DocumentID) String() string {
	return strings.Join(id, ",")
}

// Equal reports whether both identifiers have the same parts.
func (id DocumentID) Equal(other DocumentID) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate rejects empty identifiers and parts containing the key separator.
func (id DocumentID) Validate() error {
	if len(id) == 0 {
		return errors.New("document id has no parts")
	}
	for _, part := range id {
		if part == "" {
			return errors.New("document id has an empty part")
		}
		if strings.Contains(part, keySeparator) {
			return errors.New("document id part contains the key separator")
		}
	}
	return nil
}

// Keys converts identifiers to their storage form.
func Keys(ids []DocumentID) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.Key()
	}
	return keys
}
