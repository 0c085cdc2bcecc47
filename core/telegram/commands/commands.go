package commands

import (
	"sort"
	"strings"

	"github.com/m3rciful/orderbot/core/order"

	tele "gopkg.in/telebot.v4"
)

// Command maps a slash command to the conversation event it produces.
type Command struct {
	Kind        order.EventKind
	Description string
	Hidden      bool
	Aliases     []string
}

// Registry holds the commands the bot understands. It is read-only once
// the bot is running.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Default returns the registry with /start and /cancel.
func Default() *Registry {
	r := NewRegistry()
	r.Register("/start", Command{Kind: order.EventStart, Description: "Оформить заказ"})
	r.Register("/cancel", Command{Kind: order.EventCancel, Description: "Отменить заказ"})
	return r
}

// Register adds cmd under name. Invalid and duplicate registrations are
// reported as false.
func (r *Registry) Register(name string, cmd Command) bool {
	if r == nil || cmd.Kind == "" || !strings.HasPrefix(name, "/") || len(name) < 2 {
		return false
	}
	if _, exists := r.commands[name]; exists {
		return false
	}
	r.commands[name] = cmd
	return true
}

// Lookup resolves name by its canonical form or one of its aliases. A
// trailing @botname suffix is ignored.
func (r *Registry) Lookup(name string) (Command, bool) {
	if r == nil {
		return Command{}, false
	}
	name = Normalize(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	for _, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return cmd, true
			}
		}
	}
	return Command{}, false
}

// ListCommands returns the menu entries sorted by name, optionally
// filtering out hidden commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// Normalize lowercases a command token and strips the @botname suffix.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}
