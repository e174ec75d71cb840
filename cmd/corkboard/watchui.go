// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/corkboard-foundation/corkboard/lib/api"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// watchKeyMap is the watch view's key bindings.
type watchKeyMap struct {
	FullIDs key.Binding
	Quit    key.Binding
}

var defaultWatchKeys = watchKeyMap{
	FullIDs: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "toggle full IDs"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// presenceMsg carries one update from the watch stream.
type presenceMsg api.PresenceResponse

// streamEndedMsg reports that the watch stream stopped.
type streamEndedMsg struct{ err error }

// watchModel is the bubbletea model behind "corkboard watch" on a
// terminal. It shows the latest snapshot only.
type watchModel struct {
	renderer *renderer
	keys     watchKeyMap
	document ref.DocumentID
	latest   api.PresenceResponse
	received bool
	err      error
}

func newWatchModel(doc ref.DocumentID) watchModel {
	return watchModel{renderer: newRenderer(true), keys: defaultWatchKeys, document: doc}
}

func (m watchModel) Init() tea.Cmd { return nil }

func (m watchModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(message, m.keys.FullIDs):
			m.renderer.fullIDs = !m.renderer.fullIDs
		}
	case tea.WindowSizeMsg:
		m.renderer.width = message.Width
	case presenceMsg:
		m.latest = api.PresenceResponse(message)
		m.received = true
	case streamEndedMsg:
		m.err = message.err
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	var builder strings.Builder
	if m.received {
		builder.WriteString(m.renderer.render(m.latest))
	} else {
		builder.WriteString(m.renderer.absent.Render("waiting for " + m.renderer.id(m.document.String()) + " ..."))
		builder.WriteString("\n")
	}
	help := lipgloss.NewStyle().Faint(true).Render(helpLine(m.keys.FullIDs, m.keys.Quit))
	builder.WriteString("\n" + help + "\n")
	return builder.String()
}

func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return strings.Join(parts, " • ")
}

// runWatchUI streams presence into a full-screen view until the user
// quits, ctx is cancelled, or the stream ends.
func runWatchUI(ctx context.Context, client *api.Client, doc ref.DocumentID, facet ref.FacetKey) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newWatchModel(doc), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		err := client.Watch(ctx, doc, facet, func(update api.PresenceResponse) error {
			program.Send(presenceMsg(update))
			return nil
		})
		program.Send(streamEndedMsg{err: err})
	}()

	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if model, ok := final.(watchModel); ok && model.err != nil && ctx.Err() == nil {
		return model.err
	}
	return nil
}
