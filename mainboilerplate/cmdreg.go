package mainboilerplate

import (
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// AddCommandFunc adds a sub-command to its parent Command.
type AddCommandFunc func(*flags.Command) error

// CommandRegistry collects sub-commands before the parser which will hold
// them exists, so that packages may register commands from init(). Commands
// are keyed on the dotted path of their parent, where "" is the root:
//
//	registry.AddCommand("", "events", ...)
//	registry.AddCommand("events", "list", ...)
type CommandRegistry map[string][]AddCommandFunc

// NewCommandRegistry returns an empty CommandRegistry.
func NewCommandRegistry() CommandRegistry { return make(CommandRegistry) }

// AddCommand registers a command under the dotted |parent| path. Arguments
// are those of flags.Command.AddCommand.
func (cr CommandRegistry) AddCommand(parent, name, short, long string, data interface{}) {
	cr[parent] = append(cr[parent], func(cmd *flags.Command) error {
		var _, err = cmd.AddCommand(name, short, long, data)
		return errors.WithMessagef(err, "adding command %q", strings.TrimPrefix(parent+"."+name, "."))
	})
}

// AddCommands adds commands registered under |path| to |cmd|. If |recursive|,
// commands registered under each child of |cmd| are then added as well,
// including children which weren't themselves registered.
func (cr CommandRegistry) AddCommands(path string, cmd *flags.Command, recursive bool) error {
	for _, fn := range cr[path] {
		if err := fn(cmd); err != nil {
			return err
		}
	}
	if !recursive {
		return nil
	}
	for _, child := range cmd.Commands() {
		var childPath = child.Name
		if path != "" {
			childPath = path + "." + child.Name
		}
		if err := cr.AddCommands(childPath, child, true); err != nil {
			return err
		}
	}
	return nil
}
