package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/damianoneill/netpush/credentials"
	"github.com/damianoneill/netpush/credentials/filestore"
	"github.com/damianoneill/netpush/credentials/mongostore"
)

func newInventoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "manage the credential inventory",
	}
	cmd.AddCommand(newSealCmd(a))
	return cmd
}

func newSealCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "seal the secrets of a clear inventory file into the configured inventory",
		Long: "seal reads a yaml inventory holding clear secrets, seals them with --inventory-key and writes\n" +
			"the result to the file named by --inventory or, without one, to the MongoDB inventory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			defer func() {
				if terr := a.teardown(ctx); terr != nil && err == nil {
					err = terr
				}
			}()
			n, err := a.seal(ctx, from)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sealed %d credentials\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "yaml inventory holding clear secrets")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// seal copies the entries of the clear inventory at from into the configured inventory, sealing their secrets.
func (a *app) seal(ctx context.Context, from string) (int, error) {
	inv := a.cfg.Inventory
	if inv.Key == "" {
		return 0, errors.New("no inventory key configured, set --inventory-key")
	}
	cipher, err := credentials.NewCipher(inv.Key)
	if err != nil {
		return 0, err
	}

	plain := filestore.New(a.files, from, nil)
	if err = plain.Load(); err != nil {
		return 0, err
	}
	entries := plain.Entries()

	switch {
	case inv.File != "":
		if err = filestore.New(a.files, inv.File, cipher).Save(entries); err != nil {
			return 0, err
		}
	case inv.MongoURI != "":
		store, err := mongostore.New(ctx, inv.MongoURI, inv.Database, inv.Collection, cipher)
		if err != nil {
			return 0, err
		}
		a.closers = append(a.closers, store.Close)
		for _, e := range entries {
			if err = store.Save(ctx, e); err != nil {
				return 0, errors.Wrapf(err, "failed to save %s", e.Equipment)
			}
		}
	default:
		return 0, errors.New("no credential inventory configured, set --inventory or --mongo-uri")
	}
	a.logger.Info("inventory sealed", zap.String("from", from), zap.Int("entries", len(entries)))
	return len(entries), nil
}
