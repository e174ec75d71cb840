// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package importer seeds new documents from JSONC files: JSON extended
// with // line comments, /* block comments */, and trailing commas.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → docstore.Doc
//  2. Import: create a new document holding the parsed content
//
// Numbers without a fractional part become int64; all others become
// float64. The top level must be an object.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Creator creates documents. *docstore.Repo satisfies it.
type Creator interface {
	Create(ctx context.Context, initial docstore.Doc) (ref.DocumentID, error)
}

// TitleKey is the field Import fills from the file name when the
// content has no title of its own.
const TitleKey = "title"

// Parse strips JSONC comments and trailing commas from data, then
// decodes the result into a document.
func Parse(data []byte) (docstore.Doc, error) {
	stripped := jsonc.ToJSON(data)

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if decoder.More() {
		return nil, errors.New("parsing document: trailing data after the top-level object")
	}

	doc, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parsing document: top level is %s, want an object", kind(value))
	}
	normalized, err := normalize(doc, "")
	if err != nil {
		return nil, err
	}
	return normalized.(map[string]any), nil
}

// ReadFile reads and parses a JSONC document file.
func ReadFile(path string) (docstore.Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Import reads path and creates a document from it. A document
// without a string title gets one derived from the file name.
func Import(ctx context.Context, creator Creator, path string) (ref.DocumentID, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return ref.DocumentID{}, err
	}
	if _, ok := doc[TitleKey].(string); !ok {
		doc[TitleKey] = NameFromPath(path)
	}
	id, err := creator.Create(ctx, doc)
	if err != nil {
		return ref.DocumentID{}, fmt.Errorf("importing %s: %w", path, err)
	}
	return id, nil
}

// NameFromPath extracts a document name from a file path by stripping
// the directory prefix and the file extension. For example,
// "seed/boards/retro.jsonc" returns "retro".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// normalize converts json.Number leaves and reports the path of the
// first value the document model cannot hold.
func normalize(value any, path string) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			converted, err := normalize(child, path+"/"+key)
			if err != nil {
				return nil, err
			}
			v[key] = converted
		}
		return v, nil
	case []any:
		for index, child := range v {
			converted, err := normalize(child, fmt.Sprintf("%s/%d", path, index))
			if err != nil {
				return nil, err
			}
			v[index] = converted
		}
		return v, nil
	case json.Number:
		if integer, err := v.Int64(); err == nil {
			return integer, nil
		}
		float, err := v.Float64()
		if err != nil || math.IsInf(float, 0) {
			return nil, fmt.Errorf("parsing document: number %s at %q is out of range", v, displayPath(path))
		}
		return float, nil
	default:
		return v, nil
	}
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func kind(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	default:
		return fmt.Sprintf("%T", value)
	}
}
