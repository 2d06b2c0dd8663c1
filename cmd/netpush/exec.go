package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/damianoneill/netpush/plugin"
	"github.com/damianoneill/netpush/plugin/junos"
)

func newExecCmd(a *app) *cobra.Command {
	var family, command string
	var patterns plugin.Patterns
	cmd := &cobra.Command{
		Use:   "exec EQUIPMENT...",
		Short: "run a command on equipment and classify its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, family, args, func(ctx context.Context, p plugin.Plugin) (string, error) {
				return p.ExecCommand(command, patterns)
			})
		},
	}
	cmd.Flags().StringVarP(&family, "family", "f", junos.Family, "equipment family")
	cmd.Flags().StringVar(&command, "command", "", "command to run")
	cmd.Flags().StringVar(&patterns.Success, "success", "", "pattern identifying a successful output, any output if empty")
	cmd.Flags().StringVar(&patterns.Invalid, "invalid", plugin.DefaultInvalidPattern, "pattern identifying an invalid command")
	cmd.Flags().StringVar(&patterns.Error, "error", plugin.DefaultErrorPattern, "pattern identifying a failed command")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}
