package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"relaychat/wire"
)

// The error returned when a command is added without a prefix.
var ErrMissingPrefix = errors.New("command missing prefix")

// The error returned when an alias is added for an unregistered command.
var ErrInvalidCommand = errors.New("invalid command")

// Command is a definition of a handler for a "!"-prefixed directive,
// carrying its argument and privilege requirements so the dispatcher can
// validate before the handler runs.
type Command struct {
	// The command's key, such as !remove
	Prefix string
	// Extra help regarding arguments
	PrefixHelp string
	// If omitted, command is hidden from !help
	Help string
	// Command requires exactly one target user argument
	TakesTarget bool
	// Command requires admin privilege in the room
	Admin   bool
	Handler func(*Room, CommandInput) error
}

// CommandInput is one parsed command invocation.
type CommandInput struct {
	Command string
	From    string
	Target  string
	Args    []string
	Body    string
}

// ParseCommand splits a command line on whitespace: token 0 is the command
// name, token 1 (if present) the target user.
func ParseCommand(from, body string) CommandInput {
	fields := strings.Fields(body)
	in := CommandInput{
		Command: fields[0],
		From:    from,
		Args:    fields[1:],
		Body:    body,
	}
	if len(in.Args) > 0 {
		in.Target = in.Args[0]
	}
	return in
}

// Commands is a registry of available commands.
type Commands map[string]*Command

// Add will register a command. If help string is empty, it will be hidden
// from Help().
func (c Commands) Add(cmd Command) error {
	if cmd.Prefix == "" {
		return ErrMissingPrefix
	}
	c[cmd.Prefix] = &cmd
	return nil
}

// Alias will add another command for the same handler, won't get added to help.
func (c Commands) Alias(command string, alias string) error {
	cmd, ok := c[command]
	if !ok {
		return ErrInvalidCommand
	}
	c[alias] = cmd
	return nil
}

// Run validates and executes one command invocation. Argument validation
// runs before authorization; every failure is reported to the caller alone
// and leaves room state untouched.
func (c Commands) Run(r *Room, in CommandInput) {
	cmd, ok := c[in.Command]
	if !ok {
		r.reply(in.From, fmt.Sprintf("unknown command: %s", in.Command))
		return
	}

	if cmd.TakesTarget {
		if in.Target == "" {
			r.reply(in.From, fmt.Sprintf("usage: %s %s", cmd.Prefix, cmd.PrefixHelp))
			return
		}
		if in.Target == in.From {
			r.reply(in.From, "you cannot target yourself")
			return
		}
		if !r.HasMember(in.Target) {
			r.reply(in.From, fmt.Sprintf("%s is not in this room", in.Target))
			return
		}
	}

	if cmd.Admin && !r.IsAdmin(in.From) {
		r.reply(in.From, "must be an admin to do that")
		return
	}

	if err := cmd.Handler(r, in); err != nil {
		r.reply(in.From, fmt.Sprintf("Err: %s", err))
	}
}

// Help will return collated help text as one string.
func (c Commands) Help(showAdmin bool) string {
	member := []string{}
	admin := []string{}
	width := 0
	for prefix, cmd := range c {
		if cmd.Help == "" || prefix != cmd.Prefix {
			// Hidden command or alias.
			continue
		}
		if n := len(cmd.Prefix) + 1 + len(cmd.PrefixHelp); n > width {
			width = n
		}
	}
	format := fmt.Sprintf("%%-%ds - %%s", width)
	for prefix, cmd := range c {
		if cmd.Help == "" || prefix != cmd.Prefix {
			continue
		}
		line := fmt.Sprintf(format, strings.TrimSpace(cmd.Prefix+" "+cmd.PrefixHelp), cmd.Help)
		if cmd.Admin {
			admin = append(admin, line)
		} else {
			member = append(member, line)
		}
	}
	sort.Strings(member)
	sort.Strings(admin)

	help := "Available commands:\n" + strings.Join(member, "\n")
	if showAdmin {
		help += "\nAdmin commands:\n" + strings.Join(admin, "\n")
	}
	return help
}

// InitCommands registers the commands that only need room state. The host
// adds the ones that touch registries on top of these.
func InitCommands(c *Commands) {
	c.Add(Command{
		Prefix: "!help",
		Help:   "List available commands.",
		Handler: func(r *Room, in CommandInput) error {
			r.reply(in.From, r.commands.Help(r.IsAdmin(in.From)))
			return nil
		},
	})

	c.Add(Command{
		Prefix: "!role",
		Help:   "Show whether you are an admin or a member.",
		Handler: func(r *Room, in CommandInput) error {
			role := "member"
			if r.IsAdmin(in.From) {
				role = "admin"
			}
			r.reply(in.From, role)
			return nil
		},
	})

	c.Add(Command{
		Prefix: "!roomname",
		Help:   "Show the name of this room.",
		Handler: func(r *Room, in CommandInput) error {
			r.reply(in.From, r.Name())
			return nil
		},
	})

	c.Add(Command{
		Prefix: "!admins",
		Help:   "List the admins of this room.",
		Handler: func(r *Room, in CommandInput) error {
			r.reply(in.From, strings.Join(r.Admins(), ", "))
			return nil
		},
	})

	c.Add(Command{
		Admin:  true,
		Prefix: "!listusers",
		Help:   "List everyone in this room.",
		Handler: func(r *Room, in CommandInput) error {
			r.reply(in.From, strings.Join(r.Members(), ", "))
			return nil
		},
	})

	c.Add(Command{
		Admin:  true,
		Prefix: "!banlist",
		Help:   "List names banned from this room.",
		Handler: func(r *Room, in CommandInput) error {
			banned := r.Banned()
			if len(banned) == 0 {
				r.reply(in.From, "nobody is banned")
				return nil
			}
			r.reply(in.From, strings.Join(banned, ", "))
			return nil
		},
	})

	c.Add(Command{
		Admin:       true,
		Prefix:      "!makeadmin",
		PrefixHelp:  "USER",
		TakesTarget: true,
		Help:        "Grant USER admin privilege.",
		Handler: func(r *Room, in CommandInput) error {
			if err := r.Promote(in.Target); err != nil {
				return err
			}
			r.reply(in.From, fmt.Sprintf("Made %s an admin", in.Target))
			r.Send(wire.Notice(fmt.Sprintf("%s was made an admin by %s", in.Target, in.From)), in.From)
			return nil
		},
	})
}
