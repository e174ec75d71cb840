// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the local HTTP interface between a Corkboard peer and
// its UI. The UI acquires and releases documents, publishes its own
// presence facets, and reads or streams remote presence; the peer does
// the heartbeating.
//
// Routes:
//
//	GET    /health
//	GET    /v1/identity
//	POST   /v1/documents                           create from a JSON or JSONC body
//	GET    /v1/documents/{id}                      current document content
//	GET    /v1/documents/{id}/presence?facet=      live peers for one facet
//	GET    /v1/documents/{id}/presence/watch       websocket stream of the same
//	POST   /v1/documents/{id}/presence/acquire
//	POST   /v1/documents/{id}/presence/release
//	PUT    /v1/documents/{id}/presence/facet?facet=   set the local payload
//	DELETE /v1/documents/{id}/presence/facet?facet=   clear it
//	GET    /v1/contacts/{id}/online
//	GET    /v1/contacts/{id}/devices
//	GET    /v1/devices/{id}/online
//	GET    /metrics
//
// Errors are JSON objects {"error": "..."}. Malformed IDs are 400,
// releasing a document that is not held is 409.
//
// [Client] is the matching Go client, used by the corkboard CLI.
package api
