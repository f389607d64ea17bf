package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatd/internal/engine"
	"chatd/internal/registry"
)

func newModelsCmd(o *rootOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List *.gguf models in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if check {
				return runSanityCheck(cmd, o)
			}
			models, err := registry.LoadDir(o.cfg.ModelsDir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tQUANT\tPATH")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Quant, m.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Report whether the default model can be loaded")
	return cmd
}

// runSanityCheck prints the manager's sanity report as JSON and fails when
// the default model cannot be loaded.
func runSanityCheck(cmd *cobra.Command, o *rootOptions) error {
	a, err := o.openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	rep := a.Models.SanityCheck()
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if rep.Error != "" {
		return fmt.Errorf("sanity check: %s", rep.Error)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "chatd %s (llama.cpp built in: %v)\n", version, engine.LlamaBuilt())
			return nil
		},
	}
}
