package utils

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// Cursor pagination: pages descend chronologically, the cursor is an opaque
// base64 encoding of the last row's primary id. IDs are UUIDv7 so ordering by
// id matches ordering by creation time.

// EncodeCursor encodes a row id into an opaque page cursor
func EncodeCursor(id uuid.UUID) string {
	return base64.StdEncoding.EncodeToString([]byte(id.String()))
}

// DecodeCursor decodes an opaque page cursor back into a row id.
// An empty cursor yields uuid.Nil (first page).
func DecodeCursor(cursor string) (uuid.UUID, error) {
	if cursor == "" {
		return uuid.Nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(string(raw))
}

// ClampLimit normalizes a page size to [1, 100] with a default of 20
func ClampLimit(limit int) int {
	if limit < 1 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
