// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package servo

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAxis      = errors.New("servo: axis out of range 1-127")
	ErrTooManyWords     = errors.New("servo: too many words")
	ErrUnexpectedAnswer = errors.New("servo: unexpected answer")
)

// MismatchError reports an answer field that does not echo the request.
type MismatchError struct {
	Field string
	Want  uint16
	Got   uint16
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("servo: answer %s is 0x%04X, expected 0x%04X", e.Field, e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error {
	return ErrUnexpectedAnswer
}
