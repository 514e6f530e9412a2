// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"errors"
	"fmt"
)

// PortalError is a structured error reported by the portal. Callers can
// use errors.As to inspect it:
//
//	var portalErr *portal.PortalError
//	if errors.As(err, &portalErr) && portalErr.Code == portal.ErrCodeInvalidToken { ... }
type PortalError struct {
	// Code is the portal's error code. It usually mirrors an HTTP status
	// (400, 403, 404) but 498 and 499 are token-specific.
	Code int `json:"code"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Details carries additional messages, often empty.
	Details []string `json:"details"`
	// StatusCode is the HTTP status of the response. A portal error
	// inside a 200 response has StatusCode 200.
	StatusCode int `json:"-"`
}

func (e *PortalError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("portal: %d (%d): %s: %v", e.Code, e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("portal: %d (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Portal error codes.
const (
	ErrCodeBadRequest    = 400
	ErrCodeForbidden     = 403
	ErrCodeNotFound      = 404
	ErrCodeInvalidToken  = 498
	ErrCodeTokenRequired = 499
	ErrCodeServerError   = 500
)

// IsPortalError checks whether err is a *PortalError with the given
// code.
func IsPortalError(err error, code int) bool {
	var portalErr *PortalError
	if errors.As(err, &portalErr) {
		return portalErr.Code == code
	}
	return false
}
