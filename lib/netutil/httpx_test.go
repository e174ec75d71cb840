// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("connection dropped") }

func TestReadResponseIsBounded(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"count":1}`))
	if err != nil || string(data) != `{"count":1}` {
		t.Fatalf("ReadResponse = %q, %v", data, err)
	}
	if _, err := ReadResponse(failReader{}); err == nil {
		t.Fatal("expected the read error to propagate")
	}
}

func TestDecodeResponse(t *testing.T) {
	var result struct {
		Document string `json:"document"`
		Count    int    `json:"count"`
	}
	if err := DecodeResponse(strings.NewReader(`{"document":"doc_a","count":2}`), &result); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if result.Document != "doc_a" || result.Count != 2 {
		t.Errorf("decoded %+v", result)
	}

	if err := DecodeResponse(strings.NewReader(`not json`), &result); err == nil {
		t.Error("expected an error for invalid JSON")
	}
	if err := DecodeResponse(failReader{}, &result); err == nil {
		t.Error("expected the read error to propagate")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
		want string
	}{
		{"json envelope", strings.NewReader(`{"error":"release without matching acquire"}`), "release without matching acquire"},
		{"plain text", strings.NewReader("404 page not found\n"), "404 page not found"},
		{"json without error", strings.NewReader(`{"count":0}`), `{"count":0}`},
		{"empty", bytes.NewReader(nil), ""},
		{"read failure", failReader{}, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ErrorMessage(test.body); got != test.want {
				t.Errorf("ErrorMessage = %q, want %q", got, test.want)
			}
		})
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{fmt.Errorf("writing frame: %w", net.ErrClosed), true},
		{&net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{&net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{syscall.ECONNREFUSED, false},
		{errors.New("unexpected"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}
