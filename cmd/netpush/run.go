package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/damianoneill/netpush/families"
	"github.com/damianoneill/netpush/plugin"
)

// action is applied to each connected plugin.
type action func(ctx context.Context, p plugin.Plugin) (string, error)

type result struct {
	equipment string
	message   string
	err       error
}

// run applies do to every equipment of the family, at most Concurrency at once, and reports the results.
// Equipment are independent, the failure of one does not stop the others.
func (a *app) run(cmd *cobra.Command, family string, equipment []string, do action) (err error) {
	ctx := a.traceContext(cmd.Context())
	defer func() {
		if terr := a.teardown(ctx); terr != nil && err == nil {
			err = terr
		}
	}()

	opts, err := a.pluginOptions(ctx)
	if err != nil {
		return err
	}

	results := make([]result, len(equipment))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Concurrency)
	for i, eq := range equipment {
		i, eq := i, eq
		g.Go(func() error {
			results[i] = a.apply(ctx, family, eq, opts, do)
			return nil
		})
	}
	_ = g.Wait()

	return report(cmd.OutOrStdout(), results)
}

func (a *app) apply(ctx context.Context, family, equipment string, shared []plugin.Option, do action) result {
	logger := a.logger.With(zap.String("equipment", equipment))
	opts := make([]plugin.Option, 0, len(shared)+1)
	opts = append(opts, shared...)
	opts = append(opts, plugin.WithLogger(logger))

	p, err := families.New(family, plugin.EquipmentID(equipment), opts...)
	if err != nil {
		return result{equipment: equipment, err: err}
	}
	defer p.Close()

	if err = p.Connect(ctx); err != nil {
		return result{equipment: equipment, err: err}
	}
	msg, err := do(ctx, p)
	if err != nil {
		logger.Error("operation failed", zap.Stringer("kind", plugin.KindOf(err)), zap.Error(err))
	}
	return result{equipment: equipment, message: msg, err: err}
}

func report(w io.Writer, results []result) error {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "%s: %s: %v\n", r.equipment, plugin.KindOf(r.err), r.err)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", r.equipment, r.message)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d equipment failed", failed, len(results))
	}
	return nil
}
