package entity

import "errors"

var (
	// ErrDuplicatePO is returned by the store when a record with the same
	// PO number already exists. Callers should update instead.
	ErrDuplicatePO = errors.New("audit record with this PO already exists")

	ErrInvalidRecord = errors.New("invalid audit record")
)
