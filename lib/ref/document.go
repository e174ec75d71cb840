// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	documentPrefix = "doc_"

	// documentIDBytes is how much of the BLAKE3 digest an ID keeps.
	// 160 bits is ample for collision resistance across a workspace.
	documentIDBytes = 20
)

var documentEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// documentDomainKey separates document addressing from any other use
// of BLAKE3 with the same input bytes. Changing it re-addresses every
// document.
var documentDomainKey = [32]byte{
	'c', 'o', 'r', 'k', 'b', 'o', 'a', 'r', 'd', '.', 'd', 'o', 'c', 'u', 'm', 'e',
	'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DocumentID is the stable, content-addressed identifier of a
// replicated document: "doc_" followed by 32 base32 characters.
type DocumentID struct {
	id string
}

// NewDocumentID derives the identifier of a document from its genesis
// record, the bytes written when the document was first created.
func NewDocumentID(genesis []byte) DocumentID {
	hasher, err := blake3.NewKeyed(documentDomainKey[:])
	if err != nil {
		panic("ref: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(genesis)
	digest := hasher.Sum(nil)
	return DocumentID{id: documentPrefix + documentEncoding.EncodeToString(digest[:documentIDBytes])}
}

// ParseDocumentID validates raw and returns it as a DocumentID.
func ParseDocumentID(raw string) (DocumentID, error) {
	if raw == "" {
		return DocumentID{}, fmt.Errorf("document ID is empty")
	}
	encoded, ok := strings.CutPrefix(raw, documentPrefix)
	if !ok {
		return DocumentID{}, fmt.Errorf("document ID %q: missing %q prefix", raw, documentPrefix)
	}
	decoded, err := documentEncoding.DecodeString(encoded)
	if err != nil {
		return DocumentID{}, fmt.Errorf("document ID %q: %w", raw, err)
	}
	if len(decoded) != documentIDBytes {
		return DocumentID{}, fmt.Errorf("document ID %q: %d bytes, want %d", raw, len(decoded), documentIDBytes)
	}
	return DocumentID{id: raw}, nil
}

// MustParseDocumentID is ParseDocumentID for constants and tests.
func MustParseDocumentID(raw string) DocumentID {
	id, err := ParseDocumentID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (d DocumentID) String() string { return d.id }

// IsZero reports whether d is the zero value.
func (d DocumentID) IsZero() bool { return d.id == "" }

// MarshalText refuses the zero value so an unset ID never reaches the
// wire as an empty string.
func (d DocumentID) MarshalText() ([]byte, error) {
	if d.id == "" {
		return nil, fmt.Errorf("cannot marshal zero DocumentID")
	}
	return []byte(d.id), nil
}

// UnmarshalText validates the input. Empty input yields the zero value.
func (d *DocumentID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = DocumentID{}
		return nil
	}
	parsed, err := ParseDocumentID(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
