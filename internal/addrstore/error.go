// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrstore

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrMissingRecord indicates an insert was attempted with a nil address
	// record.
	ErrMissingRecord = ErrorKind("ErrMissingRecord")

	// ErrMissingSource indicates an insert was attempted with a nil source
	// address.
	ErrMissingSource = ErrorKind("ErrMissingSource")

	// ErrMalformedRecord indicates an insert was attempted with a record
	// that is missing required fields such as the IP.
	ErrMalformedRecord = ErrorKind("ErrMalformedRecord")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// StoreError identifies an address store violation.  Since the facade is only
// ever handed records that already passed wire-level parsing, a store error
// indicates a defect in the calling code rather than remote misbehavior, so
// it is reported to the caller instead of being swallowed.  It has full
// support for errors.Is and errors.As, so the caller can ascertain the
// specific reason for the error by checking the underlying error.
type StoreError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e StoreError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e StoreError) Unwrap() error {
	return e.Err
}

// storeError creates a StoreError given a set of arguments.
func storeError(kind ErrorKind, desc string) StoreError {
	return StoreError{Err: kind, Description: desc}
}
