package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/howeyc/gopass"

	"relaychat/wire"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options
type Options struct {
	Server  string `long:"server" description:"Host and port of the relay server." default:"localhost:5000"`
	Name    string `short:"n" long:"name" description:"Name to register as. Prompted for when omitted."`
	Version bool   `long:"version" description:"Print version and exit."`
}

func fail(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// client holds the session state plus the stdin pump. Stdin is owned by one
// goroutine that only reads when asked, so the password prompt can take the
// terminal without racing a pending read.
type client struct {
	enc *wire.Encoder
	dec *wire.Decoder

	name string
	room string

	reads   chan struct{}
	lines   chan string
	pending bool
}

func newClient(conn net.Conn, name string) *client {
	c := &client{
		enc:   wire.NewEncoder(conn),
		dec:   wire.NewDecoder(conn),
		name:  name,
		reads: make(chan struct{}),
		lines: make(chan string),
	}
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for range c.reads {
			if !scanner.Scan() {
				close(c.lines)
				return
			}
			c.lines <- scanner.Text()
		}
	}()
	return c
}

// readLine blocks for one line of input, reusing a pending read if the main
// loop already requested one.
func (c *client) readLine() (string, bool) {
	if !c.pending {
		c.reads <- struct{}{}
	}
	c.pending = false
	line, ok := <-c.lines
	return strings.TrimSpace(line), ok
}

func (c *client) ask(prompt string) (string, bool) {
	fmt.Print(prompt)
	return c.readLine()
}

// askPassword masks the input. Only safe when no stdin read is pending.
func (c *client) askPassword() string {
	pw, err := gopass.GetPasswdPrompt("Password (enter for none): ", true, os.Stdin, os.Stdout)
	if err != nil {
		return ""
	}
	return string(pw)
}

func printRooms(rooms map[string]wire.RoomSummary) {
	fmt.Println("\nAvailable chat rooms:")
	for name, room := range rooms {
		fmt.Printf("- %s (Owner: %s)\n", name, room.Owner)
		fmt.Printf("  Users: %s\n", strings.Join(room.Users, ", "))
	}
	fmt.Println()
}

// chooseRoom walks the join-or-create prompt and sends the resulting
// CREATE_ROOM or JOIN_ROOM request. The reply arrives on the frame loop.
func (c *client) chooseRoom(rooms map[string]wire.RoomSummary) error {
	printRooms(rooms)

	if len(rooms) == 0 {
		fmt.Println("There are currently no chat rooms to join. Please create one.")
		return c.createPrompt()
	}

	for {
		choice, ok := c.ask("Do you want to join an existing chat room? (y/n): ")
		if !ok {
			return fmt.Errorf("stdin closed")
		}
		switch choice {
		case "y":
			name, ok := c.ask("Enter the name of the chat room to join: ")
			if !ok {
				return fmt.Errorf("stdin closed")
			}
			// The snapshot does not say whether a room is protected, so
			// always ask; an empty answer joins open rooms.
			password := c.askPassword()
			c.room = name
			return c.enc.Encode(&wire.Payload{Type: wire.TypeJoinRoom, RoomName: name, Password: password})
		case "n":
			return c.createPrompt()
		}
	}
}

func (c *client) createPrompt() error {
	name, ok := c.ask("Enter the name of the new chat room: ")
	if !ok {
		return fmt.Errorf("stdin closed")
	}
	password := c.askPassword()
	c.room = name
	return c.enc.Encode(&wire.Payload{Type: wire.TypeCreateRoom, RoomName: name, Password: password})
}

// run is the main loop: server frames and input lines multiplex over
// channels, room selection happens inline on REJOIN.
func (c *client) run() error {
	inbox := make(chan *wire.Payload)
	readErr := make(chan error, 1)
	go func() {
		for {
			p, err := c.dec.Decode()
			if err != nil {
				readErr <- err
				return
			}
			inbox <- p
		}
	}()

	for {
		if !c.pending {
			c.reads <- struct{}{}
			c.pending = true
		}

		select {
		case err := <-readErr:
			fmt.Println("Server disconnected.")
			return err

		case p := <-inbox:
			switch p.Type {
			case wire.TypeReceive:
				fmt.Printf("%s: %s\n", p.From, p.Message)
			case wire.TypeBroadcast:
				fmt.Printf("[Broadcast]: %s\n", p.Message)
			case wire.TypeConnected:
				c.room = p.RoomName
				fmt.Printf("[Server]: Joined %s\n", p.RoomName)
			case wire.TypeRejoin:
				c.room = ""
				fmt.Println("\n[Server]: You are no longer in a room. Rejoin required.")
				if p.Message != "" {
					fmt.Printf("[Server]: %s\n", p.Message)
				}
				if err := c.chooseRoom(p.Rooms); err != nil {
					return err
				}
			case wire.TypeError:
				fmt.Printf("[Server error]: %s\n", p.Message)
			case wire.TypeDisconnect:
				fmt.Println("Server disconnected.")
				return nil
			}

		case line, ok := <-c.lines:
			c.pending = false
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "exit") {
				c.enc.Encode(&wire.Payload{Type: wire.TypeDisconnect})
				fmt.Println("Closing")
				return nil
			}
			if c.room == "" {
				fmt.Println("[Client]: You are not currently in a room.")
				continue
			}
			if err := c.enc.Encode(&wire.Payload{Type: wire.TypeSend, RoomName: c.room, Message: line}); err != nil {
				return err
			}
		}
	}
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Print(err)
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		return
	}

	conn, err := net.Dial("tcp", options.Server)
	if err != nil {
		fail(2, "Failed to connect: %v\n", err)
	}
	defer conn.Close()

	c := newClient(conn, options.Name)
	if c.name == "" {
		name, ok := c.ask("Enter your username: ")
		if !ok || name == "" {
			fail(3, "A name is required.\n")
		}
		c.name = name
	}

	if err := c.enc.Encode(&wire.Payload{Type: wire.TypeSend, Name: c.name}); err != nil {
		fail(4, "Registration failed: %v\n", err)
	}
	reply, err := c.dec.Decode()
	if err != nil {
		fail(4, "Registration failed: %v\n", err)
	}
	if reply.Type != wire.TypeRegistered {
		fail(4, "Registration refused: %s\n", reply.Message)
	}

	fmt.Printf("\n[Server]: %s\n", reply.Message)
	if err := c.chooseRoom(reply.Rooms); err != nil {
		fail(5, "%v\n", err)
	}

	if err := c.run(); err != nil {
		os.Exit(1)
	}
}
