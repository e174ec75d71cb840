// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and connection I/O helpers shared by
// the Corkboard API client and server.
//
// Response helpers (ReadResponse, DecodeResponse, ErrorMessage) bound
// every body read at MaxResponseSize. They are for JSON API responses,
// not for streams.
//
// IsExpectedCloseError classifies errors that occur during normal
// connection teardown so they are not logged as failures.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize is the bound on JSON API response body reads. Documents
// are the largest responses; this is far above any real one.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (up to MaxResponseSize
// bytes) and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorMessage extracts the message from an error response. Bodies of
// the form {"error": "..."} yield the message; anything else is
// returned trimmed. Read errors are ignored: a partial body is still
// useful in an error message.
func ErrorMessage(body io.Reader) string {
	data, _ := ReadResponse(body)
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(data))
}
