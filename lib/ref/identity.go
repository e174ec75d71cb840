// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ContactID identifies a human participant by the document that
// describes them.
type ContactID struct {
	doc DocumentID
}

// ContactFromDocument wraps a contact's own document ID.
func ContactFromDocument(doc DocumentID) ContactID { return ContactID{doc: doc} }

// ParseContactID parses the contact document's ID.
func ParseContactID(raw string) (ContactID, error) {
	doc, err := ParseDocumentID(raw)
	if err != nil {
		return ContactID{}, fmt.Errorf("contact: %w", err)
	}
	return ContactID{doc: doc}, nil
}

// Document returns the contact's own document.
func (c ContactID) Document() DocumentID { return c.doc }

func (c ContactID) String() string { return c.doc.id }

// IsZero reports whether c is unset.
func (c ContactID) IsZero() bool { return c.doc.IsZero() }

func (c ContactID) MarshalText() ([]byte, error) { return c.doc.MarshalText() }

func (c *ContactID) UnmarshalText(data []byte) error { return c.doc.UnmarshalText(data) }

// DeviceID identifies one running instance belonging to a contact, by
// the document that describes the device.
type DeviceID struct {
	doc DocumentID
}

// DeviceFromDocument wraps a device's own document ID.
func DeviceFromDocument(doc DocumentID) DeviceID { return DeviceID{doc: doc} }

// ParseDeviceID parses the device document's ID.
func ParseDeviceID(raw string) (DeviceID, error) {
	doc, err := ParseDocumentID(raw)
	if err != nil {
		return DeviceID{}, fmt.Errorf("device: %w", err)
	}
	return DeviceID{doc: doc}, nil
}

// Document returns the device's own document.
func (d DeviceID) Document() DocumentID { return d.doc }

func (d DeviceID) String() string { return d.doc.id }

// IsZero reports whether d is unset.
func (d DeviceID) IsZero() bool { return d.doc.IsZero() }

func (d DeviceID) MarshalText() ([]byte, error) { return d.doc.MarshalText() }

func (d *DeviceID) UnmarshalText(data []byte) error { return d.doc.UnmarshalText(data) }

// PeerKey is one device of one contact. It keys the remote presence
// cache: the same contact on two devices is two peers.
type PeerKey struct {
	Contact ContactID
	Device  DeviceID
}

func (k PeerKey) String() string { return k.Contact.String() + "/" + k.Device.String() }

// IsZero reports whether either half of the key is unset.
func (k PeerKey) IsZero() bool { return k.Contact.IsZero() || k.Device.IsZero() }

// Less orders keys by contact, then device.
func (k PeerKey) Less(other PeerKey) bool {
	if k.Contact != other.Contact {
		return k.Contact.String() < other.Contact.String()
	}
	return k.Device.String() < other.Device.String()
}
