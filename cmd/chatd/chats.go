package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatd/internal/transcript"
)

func newChatsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage stored chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("chats requires a subcommand: list|delete|dup")
		},
	}
	withStore := func(fn func(transcript.Store, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			st, err := transcript.Open(o.cfg.Store.Driver, o.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()
			return fn(st, cmd, args)
		}
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored chats",
		Args:  cobra.NoArgs,
		RunE: withStore(func(st transcript.Store, cmd *cobra.Command, args []string) error {
			names, err := st.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				msgs, _, err := st.Load(n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", n, len(msgs))
			}
			return nil
		}),
	}
	del := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: withStore(func(st transcript.Store, cmd *cobra.Command, args []string) error {
			return st.Delete(args[0])
		}),
	}
	dup := &cobra.Command{
		Use:   "dup <name>",
		Short: "Duplicate a chat as <name>-copy",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(st transcript.Store, cmd *cobra.Command, args []string) error {
			name, err := st.Duplicate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		}),
	}
	cmd.AddCommand(list, del, dup)
	return cmd
}
