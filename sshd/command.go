package sshd

import (
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/armon/go-radix"
)

// ErrUnknownCommand is returned by Dispatch when the first word names no command.
var ErrUnknownCommand = errors.New("unknown command")

// CommandFlags is called before help or command execution to parse command line flags.
// It returns a flag.FlagSet and a pointer to the struct that receives the parsed values.
type CommandFlags func() (*flag.FlagSet, any)

// CommandCallback runs a command.
// fs is the struct returned by Command.Flags, if there was one. -h and -help are reserved.
// a holds the unconsumed arguments.
// An error returned here is handed back to the caller of Dispatch, the callback
// should still tell the user what went wrong through w.
type CommandCallback func(fs any, a []string, w StringWriter) error

type Command struct {
	Name             string
	ShortDescription string
	Help             string
	Flags            CommandFlags
	Callback         CommandCallback
}

func (c *Command) exec(args []string, w StringWriter) error {
	var fs any
	if c.Flags != nil {
		var fl *flag.FlagSet
		fl, fs = c.Flags()
		if fl != nil {
			fl.SetOutput(w.GetWriter())
			if err := fl.Parse(args); err != nil {
				return err
			}
			args = fl.Args()
		}
	}

	return c.Callback(fs, args, w)
}

// Commands is a prefix searchable command table. It is shared by the ssh
// sessions and anything else that wants to run command lines, like scripts.
type Commands struct {
	tree *radix.Tree
}

// NewCommands returns a table holding only the help command.
func NewCommands() *Commands {
	c := &Commands{tree: radix.New()}
	c.Register(&Command{
		Name:             "help",
		ShortDescription: "prints available commands or help <command> for specific usage info",
		Callback: func(_ any, a []string, w StringWriter) error {
			return c.help(a, w)
		},
	})
	return c
}

// Register adds or replaces a command.
func (c *Commands) Register(cmd *Command) {
	c.tree.Insert(cmd.Name, cmd)
}

// clone gives a session its own table so session only commands do not leak.
func (c *Commands) clone() *Commands {
	n := &Commands{tree: radix.NewFromMap(c.tree.ToMap())}
	n.Register(&Command{
		Name:             "help",
		ShortDescription: "prints available commands or help <command> for specific usage info",
		Callback: func(_ any, a []string, w StringWriter) error {
			return n.help(a, w)
		},
	})
	return n
}

// Lookup returns the command registered under name, or nil.
func (c *Commands) Lookup(name string) *Command {
	v, ok := c.tree.Get(name)
	if !ok {
		return nil
	}
	cmd, _ := v.(*Command)
	return cmd
}

// Match returns the sorted names that start with prefix.
func (c *Commands) Match(prefix string) []string {
	var names []string
	c.tree.WalkPrefix(prefix, func(found string, _ any) bool {
		names = append(names, found)
		return false
	})
	sort.Strings(names)
	return names
}

func (c *Commands) all() []*Command {
	var cmds []*Command
	c.tree.Walk(func(_ string, v any) bool {
		if cmd, ok := v.(*Command); ok {
			cmds = append(cmds, cmd)
		}
		return false
	})
	return cmds
}

// Dispatch splits line like a shell would and runs the command it names.
// An empty line prints the command list.
func (c *Commands) Dispatch(line string, w StringWriter) error {
	args, err := shlex.Split(line, true)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return c.dump(w)
	}

	cmd := c.Lookup(args[0])
	if cmd == nil {
		_ = w.WriteLine(fmt.Sprintf("did not understand: %s", line))
		_ = c.dump(w)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}

	for _, a := range args[1:] {
		if a == "-h" || a == "-help" {
			return c.help([]string{cmd.Name}, w)
		}
	}

	return cmd.exec(args[1:], w)
}

func (c *Commands) dump(w StringWriter) error {
	lines := make([]string, 0)
	for _, cmd := range c.all() {
		lines = append(lines, fmt.Sprintf("%s - %s", cmd.Name, cmd.ShortDescription))
	}
	sort.Strings(lines)
	return w.Write("Available commands:\n" + strings.Join(lines, "\n") + "\n\n")
}

func (c *Commands) help(a []string, w StringWriter) error {
	if len(a) == 0 {
		return c.dump(w)
	}

	cmd := c.Lookup(a[0])
	if cmd == nil {
		return w.WriteLine("Command not available " + a[0])
	}

	if err := w.WriteLine(fmt.Sprintf("%s - %s", cmd.Name, cmd.ShortDescription)); err != nil {
		return err
	}

	if cmd.Help != "" {
		if err := w.WriteLine("  " + cmd.Help); err != nil {
			return err
		}
	}

	if cmd.Flags != nil {
		if fs, _ := cmd.Flags(); fs != nil {
			fs.SetOutput(w.GetWriter())
			fs.PrintDefaults()
		}
	}
	return nil
}
