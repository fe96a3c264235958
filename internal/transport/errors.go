/*
 * This file is part of Xiaolang (https://github.com/xiaolang-labs/xiaolang).
 * Copyright (C) 2026 Xiaolang Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package transport

import (
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures. The assistant state machine
// keys its retry and messaging policy off this classification; the
// transport layer itself never retries.
type ErrorKind string

const (
	// ErrorPermission: microphone access denied or insecure context.
	ErrorPermission ErrorKind = "permission"
	// ErrorDevice: no usable capture hardware.
	ErrorDevice ErrorKind = "device"
	// ErrorNetwork: recognizer unreachable or connection dropped.
	ErrorNetwork ErrorKind = "network"
	// ErrorProtocol: malformed message from the recognizer.
	ErrorProtocol ErrorKind = "protocol"
	// ErrorConfig: required remote-service configuration missing.
	ErrorConfig ErrorKind = "config"
	// ErrorUnsupported: no recognition backend available at all.
	ErrorUnsupported ErrorKind = "unsupported"
)

// Error is a typed transport error.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a typed transport error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from an error chain. Unclassified errors
// report ErrorNetwork, the only kind the state machine will retry once.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrorNetwork
}

// ErrRecognitionUnsupported is returned by Select when neither the
// streaming recognizer nor the HTTP fallback is configured.
var ErrRecognitionUnsupported = NewError(ErrorUnsupported, "no recognition backend configured", nil)
