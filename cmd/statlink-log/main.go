// Command statlink-log views and analyzes statlink protocol captures.
//
// Captures are written by statlink and statlink-server when run with the
// -protocol-log flag.
//
// Usage:
//
//	statlink-log <command> [flags] <file>
//
// Commands:
//
//	view     View a capture in human-readable format
//	filter   Filter a capture and write the matches to a new file
//	stats    Show statistics about a capture
//
// Examples:
//
//	# View only incoming responses
//	statlink-log view -direction in -category message client.slog
//
//	# Follow the auth state machine
//	statlink-log view -entity auth client.slog
//
//	# Keep one connection
//	statlink-log filter -conn-id 3f2a9c1e -o conn.slog server.slog
//
//	# Show statistics
//	statlink-log stats client.slog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/statlink/statlink-go/cmd/statlink-log/commands"
)

const usage = `statlink-log - statlink Protocol Log Analyzer

Usage:
  statlink-log <command> [flags] <file>

Commands:
  view     View a capture in human-readable format
  filter   Filter a capture and write the matches to a new file
  stats    Show statistics about a capture

Use "statlink-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func requirePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `statlink-log view - View a capture in human-readable format

Usage:
  statlink-log view [flags] <file>

Flags:
`)
		fs.PrintDefaults()
	}

	connID := fs.String("conn-id", "", "Filter by connection ID")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	entity := fs.String("entity", "", "Filter state changes by entity (connection, session, auth, poller)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	filter := commands.ViewFilter{ConnectionID: *connID}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}
	if *entity != "" {
		e, err := commands.ParseEntityFlag(*entity)
		if err != nil {
			fail(err)
		}
		filter.Entity = &e
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `statlink-log filter - Filter a capture and write the matches to a new file

Usage:
  statlink-log filter [flags] <file>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
	fs.StringVar(&opts.Entity, "entity", "", "Filter state changes by entity (connection, session, auth, poller)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Wrote %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `statlink-log stats - Show statistics about a capture

Usage:
  statlink-log stats <file>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
