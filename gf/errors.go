// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gf

import "fmt"

// ErrorCode identifies a kind of gf package error.
type ErrorCode int

const (
	// ErrBitsOutOfRange signifies a bit width outside [2, 64].
	ErrBitsOutOfRange ErrorCode = iota

	// ErrBackendUnavailable signifies a backend that either is not built
	// for this bit width's modulus shape or whose required CPU feature
	// is absent at runtime.
	ErrBackendUnavailable
)

var errorCodeStrings = map[ErrorCode]string{
	ErrBitsOutOfRange:     "ErrBitsOutOfRange",
	ErrBackendUnavailable: "ErrBackendUnavailable",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a field-construction error.  Callers can type-assert to
// access the ErrorCode for programmatic handling.
type Error struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface.
func (e Error) Error() string {
	return e.Description
}

func makeError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether err is an Error with a matching error code.
func IsErrorCode(err error, c ErrorCode) bool {
	e, ok := err.(Error)
	return ok && e.ErrorCode == c
}
