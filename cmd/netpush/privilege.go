package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/damianoneill/netpush/plugin"
	"github.com/damianoneill/netpush/plugin/junos"
)

func newPrivilegeCmd(a *app) *cobra.Command {
	var family, level string
	cmd := &cobra.Command{
		Use:   "privilege EQUIPMENT...",
		Short: "verify the session user holds a privilege level",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, family, args, func(ctx context.Context, p plugin.Plugin) (string, error) {
				if err := p.EnsurePrivilegeLevel(ctx, level); err != nil {
					return "", err
				}
				return "privilege verified", nil
			})
		},
	}
	cmd.Flags().StringVarP(&family, "family", "f", junos.Family, "equipment family")
	cmd.Flags().StringVar(&level, "level", "", "required privilege level, family default if empty")
	return cmd
}
