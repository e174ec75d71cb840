// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// FacetKey names one independent presence channel multiplexed onto a
// document. A device may publish a different payload under each facet.
type FacetKey string

const (
	// FacetRoot carries general view state such as the current
	// selection.
	FacetRoot FacetKey = "/"

	// FacetOnlineStatus carries an empty payload whose presence alone
	// means "this device is online".
	FacetOnlineStatus FacetKey = "onlineStatus"
)
