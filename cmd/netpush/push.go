package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/damianoneill/netpush/plugin"
	"github.com/damianoneill/netpush/plugin/junos"
)

func newPushCmd(a *app) *cobra.Command {
	var family, file, level string
	var skipPrivilege bool
	cmd := &cobra.Command{
		Use:   "push EQUIPMENT...",
		Short: "apply a configuration file to equipment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, family, args, func(ctx context.Context, p plugin.Plugin) (string, error) {
				if !skipPrivilege {
					if err := p.EnsurePrivilegeLevel(ctx, level); err != nil {
						return "", err
					}
				}
				return p.CopyConfigFromFile(ctx, file)
			})
		},
	}
	cmd.Flags().StringVarP(&family, "family", "f", junos.Family, "equipment family")
	cmd.Flags().StringVar(&file, "file", "", "configuration file")
	cmd.Flags().StringVar(&level, "privilege", "", "privilege level required before pushing, family default if empty")
	cmd.Flags().BoolVar(&skipPrivilege, "skip-privilege-check", false, "push without verifying the privilege level")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
