// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := NewLogger(&buffer, "json", slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("document opened", "document", "doc_a")

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("output is not a single JSON record: %q", buffer.String())
	}
	if record["msg"] != "document opened" || record["document"] != "doc_a" {
		t.Errorf("record = %v", record)
	}
}

func TestNewLoggerTextHonorsLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := NewLogger(&buffer, "text", slog.LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("heartbeat sent", "count", 3)
	if !strings.Contains(buffer.String(), "msg=\"heartbeat sent\" count=3") {
		t.Errorf("output = %q", buffer.String())
	}
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := NewLogger(&bytes.Buffer{}, "xml", slog.LevelInfo); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}
