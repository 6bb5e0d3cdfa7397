package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/no-abramov/todoapi/pkg/client"
	"github.com/no-abramov/todoapi/pkg/storage"
)

// todoEntry adapts a todo item to bubbles/list.
type todoEntry struct {
	item storage.TodoItem
}

func (e todoEntry) Title() string { return todoLine(e.item) }

func (e todoEntry) Description() string {
	if e.item.Description != nil {
		return *e.item.Description
	}
	return ""
}

func (e todoEntry) FilterValue() string {
	if e.item.Title != nil {
		return *e.item.Title
	}
	return ""
}

type toggledMsg struct {
	index int
	item  storage.TodoItem
	err   error
}

type browseModel struct {
	ctx    context.Context
	cl     *client.Client
	list   list.Model
	status string
}

var toggleKey = key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space/x", "toggle"))

func newBrowseModel(ctx context.Context, cl *client.Client, items []storage.TodoItem) browseModel {
	entries := make([]list.Item, 0, len(items))
	for _, item := range items {
		entries = append(entries, todoEntry{item: item})
	}

	l := list.New(entries, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Todos"
	l.Styles.Title = titleStyle
	l.SetStatusBarItemName("item", "items")
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{toggleKey} }

	return browseModel{ctx: ctx, cl: cl, list: l}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) toggle(index int, id int64) tea.Cmd {
	return func() tea.Msg {
		item, err := m.cl.ToggleTodo(m.ctx, id)
		return toggledMsg{index: index, item: item, err: err}
	}
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		if key.Matches(msg, toggleKey) {
			if e, ok := m.list.SelectedItem().(todoEntry); ok {
				return m, m.toggle(m.list.Index(), e.item.ID)
			}
			return m, nil
		}

	case toggledMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
			return m, nil
		}
		m.status = successStyle.Render(fmt.Sprintf("#%d updated", msg.item.ID))
		return m, m.list.SetItem(msg.index, todoEntry{item: msg.item})
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browseModel) View() string {
	return m.list.View() + "\n" + m.status
}

func (a *app) browse(ctx context.Context) int {
	items, err := a.cl.Todos(ctx)
	if err != nil {
		return a.apiError("browse", err)
	}

	p := tea.NewProgram(newBrowseModel(ctx, a.cl, items), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fail(a.errOut, "browse: "+err.Error())
		return 1
	}
	return 0
}
