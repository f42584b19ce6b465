package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	s += string(a.orch.CurrentPhase().Kind)
	return fmt.Sprintf("(%s)", s)
}

// Root runs the interactive loop until EOF or quit.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "phantompost (type 'help' for commands)")

	a.Restore(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	a.repl(ctx, scanner)
}

// repl dispatches commands read from the scanner. Split out so tests can feed
// a scripted scanner.
func (a *App) repl(ctx context.Context, scanner *bufio.Scanner) {
	for {
		fmt.Fprintf(a.out, "pp %s> ", a.getStatus())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: add, start <batch>, pause, resume, status, reset, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: login, status, reset, exit")
			}

		case "login":
			a.Login(ctx)
		case "add":
			a.Add(ctx)
		case "start":
			if len(args) == 0 {
				fmt.Fprintln(a.out, "Usage: start <batch-id>")
				continue
			}
			a.Start(ctx, args[0])
		case "pause":
			a.Pause()
		case "resume":
			a.Resume(ctx)
		case "status":
			a.Status(ctx)
		case "reset":
			a.Reset(ctx)
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}
