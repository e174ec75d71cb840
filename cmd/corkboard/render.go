// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/corkboard-foundation/corkboard/lib/api"
)

// shortIDLength is how much of an ID a terminal listing shows.
const shortIDLength = 12

// renderer formats presence listings. Styled output is for terminals;
// plain output is tab-separated for scripts.
type renderer struct {
	styled bool

	// width truncates styled lines; zero leaves them whole.
	width int

	// fullIDs prints whole IDs instead of their first characters.
	fullIDs bool

	header  lipgloss.Style
	contact lipgloss.Style
	device  lipgloss.Style
	value   lipgloss.Style
	absent  lipgloss.Style
}

func newRenderer(styled bool) *renderer {
	return &renderer{
		styled:  styled,
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "75"}),
		contact: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "114"}),
		device:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "241", Dark: "245"}),
		value:   lipgloss.NewStyle(),
		absent:  lipgloss.NewStyle().Faint(true).Italic(true),
	}
}

func (r *renderer) render(response api.PresenceResponse) string {
	var builder strings.Builder
	if !r.styled {
		for _, peer := range response.Peers {
			fmt.Fprintf(&builder, "%s\t%s\t%s\n", peer.Contact, peer.Device, formatValue(peer))
		}
		return builder.String()
	}

	title := fmt.Sprintf("%s  facet %s  %s", r.id(response.Document.String()), response.Facet, peerCount(len(response.Peers)))
	builder.WriteString(r.fit(r.header.Render(title)))
	builder.WriteString("\n")
	if len(response.Peers) == 0 {
		builder.WriteString(r.absent.Render("  nobody else is here"))
		builder.WriteString("\n")
		return builder.String()
	}

	contactWidth := 0
	for _, peer := range response.Peers {
		contactWidth = max(contactWidth, lipgloss.Width(r.id(peer.Contact.String())))
	}
	for _, peer := range response.Peers {
		contact := r.contact.Width(contactWidth).Render(r.id(peer.Contact.String()))
		device := r.device.Render(r.id(peer.Device.String()))
		value := r.value.Render(formatValue(peer))
		if !peer.Present {
			value = r.absent.Render("(no payload)")
		}
		builder.WriteString(r.fit(fmt.Sprintf("  %s  %s  %s", contact, device, value)))
		builder.WriteString("\n")
	}
	return builder.String()
}

func (r *renderer) id(id string) string {
	if r.fullIDs {
		return id
	}
	return shortID(id)
}

// fit truncates a styled line to the renderer's width.
func (r *renderer) fit(line string) string {
	if r.width <= 0 || ansi.StringWidth(line) <= r.width {
		return line
	}
	return ansi.Truncate(line, r.width, "…")
}

// formatValue renders a payload as compact JSON, or "-" when the peer
// publishes nothing under the facet.
func formatValue(peer api.PeerPresence) string {
	if !peer.Present {
		return "-"
	}
	data, err := json.Marshal(peer.Value)
	if err != nil {
		return fmt.Sprintf("%v", peer.Value)
	}
	return string(data)
}

// shortID trims the "doc_" prefix and keeps the start of the ID.
func shortID(id string) string {
	id = strings.TrimPrefix(id, "doc_")
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func peerCount(n int) string {
	if n == 1 {
		return "1 peer"
	}
	return fmt.Sprintf("%d peers", n)
}
