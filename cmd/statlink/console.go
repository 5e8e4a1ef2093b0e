package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/statlink/statlink-go/pkg/service"
	"github.com/statlink/statlink-go/pkg/session"
)

// Console is the interactive command line.
type Console struct {
	rl *readline.Instance
}

// NewConsole creates the readline instance.
func NewConsole() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "statlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, svc *service.StatService, client *session.Client) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch cmd := strings.ToLower(strings.Fields(input)[0]); cmd {
		case "help", "?":
			c.printHelp()

		case "status", "s":
			c.printStatus(svc.Status())

		case "disconnect":
			if !client.IsConnected() {
				fmt.Fprintln(c.rl.Stdout(), "Not connected")
				continue
			}
			if err := client.Disconnect(); err != nil {
				fmt.Fprintf(c.rl.Stdout(), "Disconnect failed: %v\n", err)
			}

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
statlink Commands:
    status       - Show connection, logon and poll status
    disconnect   - Close the platform connection
    help         - Show this help
    quit         - Exit`)
}

func (c *Console) printStatus(st service.Status) {
	w := c.rl.Stdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Service:     %s\n", st.State)
	fmt.Fprintf(w, "  Auth:        %s\n", st.AuthState)
	fmt.Fprintf(w, "  Connected:   %v\n", st.Connected)
	if st.Identity != nil {
		fmt.Fprintf(w, "  Identity:    %#x\n", *st.Identity)
	} else {
		fmt.Fprintln(w, "  Identity:    -")
	}
	fmt.Fprintf(w, "  Polling:     %v\n", st.PollerActive)
	if st.LastValue != nil {
		fmt.Fprintf(w, "  Last value:  %d\n", *st.LastValue)
	}
	if st.LastPollErr != nil {
		fmt.Fprintf(w, "  Poll error:  %v\n", st.LastPollErr)
	}
	fmt.Fprintf(w, "  Events:      %d delivered, %d unhandled\n", st.EventsDelivered, st.EventsUnhandled)
}
