package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"

	relaychat "relaychat"
	"relaychat/chat"
	"relaychat/tcpd"

	_ "net/http/pprof"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options
type Options struct {
	Verbose     []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version     bool   `long:"version" description:"Print version and exit."`
	Bind        string `long:"bind" description:"Host and port to listen on." default:"0.0.0.0:5000"`
	Motd        string `long:"motd" description:"Optional Message of the Day file."`
	Log         string `long:"log" description:"Write chat log to this file."`
	Pprof       int    `long:"pprof" description:"Enable pprof http server for profiling."`
	MaxRoomSize int    `long:"max-room-size" description:"Maximum members per room, 0 for unlimited."`
	IdleTimeout string `long:"idle-timeout" description:"Drop connections with no traffic for this duration, e.g. 5m."`
}

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

func fail(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
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

	if options.Pprof != 0 {
		go func() {
			fmt.Println(http.ListenAndServe(fmt.Sprintf("localhost:%d", options.Pprof), nil))
		}()
	}

	if options.Version {
		fmt.Println(Version)
		return
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose > len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logger := golog.New(os.Stderr, logLevel)
	relaychat.SetLogger(logger)

	if logLevel == log.Debug {
		// Enable logging from submodules
		chat.SetLogger(os.Stderr)
		tcpd.SetLogger(os.Stderr)
	}

	s, err := tcpd.Listen(options.Bind)
	if err != nil {
		fail(2, "Failed to listen on socket: %v\n", err)
	}
	defer s.Close()

	if options.IdleTimeout != "" {
		d, err := time.ParseDuration(options.IdleTimeout)
		if err != nil {
			fail(3, "Invalid idle timeout: %v\n", err)
		}
		s.IdleTimeout = d
	}

	fmt.Printf("Listening for connections on %v\n", s.Addr().String())

	host := relaychat.NewHost(s)
	host.Version = Version
	host.SetMaxRoomSize(options.MaxRoomSize)

	if options.Motd != "" {
		motd, err := os.ReadFile(options.Motd)
		if err != nil {
			fail(4, "Failed to load MOTD file: %v\n", err)
		}
		host.SetMotd(string(motd))
	}

	if options.Log == "-" {
		host.SetLogging(os.Stdout)
	} else if options.Log != "" {
		fp, err := os.OpenFile(options.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			fail(5, "Failed to open log file for writing: %v", err)
		}
		host.SetLogging(fp)
	}

	go host.Serve()

	// Construct interrupt handler
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	<-sig // Wait for ^C signal
	fmt.Fprintln(os.Stderr, "Interrupt signal detected, shutting down.")
	host.Shutdown()
}
