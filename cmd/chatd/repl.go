package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"chatd/internal/chat"
)

const replHelp = `commands:
  /switch <name>  open another chat
  /clear          empty the current chat
  /chats          list stored chats
  /quit           exit
Ctrl-C stops the reply being generated.`

// replChats is the orchestrator surface the REPL drives.
type replChats interface {
	Name() string
	Send(text string) (*chat.Turn, error)
	Subscribe() (<-chan chat.Snapshot, func())
	SwitchChat(name string) error
	Clear() error
	ListChats() ([]string, error)
}

func newChatCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model on the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.LoadDefault(cmd.Context()); err != nil {
				return err
			}
			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)
			return runREPL(cmd.Context(), a.Chats, cmd.InOrStdin(), cmd.OutOrStdout(), interrupts)
		},
	}
}

// runREPL reads one message per line. An interrupt while a reply streams
// cancels it; at the prompt it exits.
func runREPL(ctx context.Context, chats replChats, in io.Reader, out io.Writer, interrupts <-chan os.Signal) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(out, "chat %q, /help for commands\n", chats.Name())
	for {
		fmt.Fprintf(out, "%s> ", chats.Name())
		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-interrupts:
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if strings.HasPrefix(line, "/") {
			quit, err := replCommand(chats, line, out)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := replTurn(ctx, chats, line, out, interrupts); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func replCommand(chats replChats, line string, out io.Writer) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, replHelp)
	case "/switch":
		if arg == "" {
			return false, fmt.Errorf("usage: /switch <name>")
		}
		return false, chats.SwitchChat(arg)
	case "/clear":
		return false, chats.Clear()
	case "/chats":
		names, err := chats.ListChats()
		if err != nil {
			return false, err
		}
		active := chats.Name()
		for _, n := range names {
			mark := " "
			if n == active {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\n", mark, n)
		}
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

// replTurn sends text and prints the reply as it grows.
func replTurn(ctx context.Context, chats replChats, text string, out io.Writer, interrupts <-chan os.Signal) error {
	sub, unsubscribe := chats.Subscribe()
	defer unsubscribe()
	turn, err := chats.Send(text)
	if err != nil || turn == nil {
		return err
	}
	printed := 0
	show := func(s string) {
		if len(s) > printed {
			fmt.Fprint(out, s[printed:])
			printed = len(s)
		}
	}
	done := ctx.Done()
	for {
		select {
		case snap, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			for _, m := range snap.Messages {
				if m.ID == turn.ReplyID() {
					show(m.Text)
				}
			}
		case <-interrupts:
			turn.Cancel()
		case <-done:
			turn.Cancel()
			done = nil
		case <-turn.Done():
			reply, err := turn.Wait()
			show(reply.Text)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			res := turn.Result()
			fmt.Fprintf(out, "[%s, %d tokens, %.1fs, %.1f tok/s]\n", res.Reason, res.Decoded, res.Elapsed.Seconds(), reply.TokensPerSecond)
			return nil
		}
	}
}
