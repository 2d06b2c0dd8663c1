package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/damianoneill/netpush/config"
	"github.com/damianoneill/netpush/credentials"
	"github.com/damianoneill/netpush/credentials/filestore"
	"github.com/damianoneill/netpush/credentials/mongostore"
	"github.com/damianoneill/netpush/logging"
	"github.com/damianoneill/netpush/metrics"
	"github.com/damianoneill/netpush/plugin"
)

// app holds what the subcommands share once the configuration is loaded.
type app struct {
	files      afero.Fs
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	resolver   plugin.CredentialResolver
	collector  *metrics.Collector
	closers    []func(ctx context.Context) error
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithFs(afero.NewOsFs())
}

func newRootCmdWithFs(files afero.Fs) *cobra.Command {
	a := &app{files: files}
	root := &cobra.Command{
		Use:          "netpush",
		Short:        "push configuration to network equipment",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "configuration file")
	pf.Bool("debug", false, "enable debug logging")
	pf.String("log-format", logging.FormatJSON, "log format, json or console")
	pf.String("inventory", "", "yaml credential inventory file")
	pf.String("mongo-uri", "", "MongoDB credential inventory, used when no inventory file is given")
	pf.String("inventory-key", "", "hex key opening sealed inventory secrets")
	pf.Int("concurrency", 4, "number of equipment handled at once")
	pf.String("metrics-textfile", "", "write metrics to this file for the node_exporter textfile collector")
	pf.Int("lock-max-attempts", plugin.DefaultConfig.LockMaxAttempts, "attempts made to lock the candidate configuration")
	pf.Int("lock-retry-wait-seconds", 10, "pause between lock attempts")
	pf.Int("connect-port", 0, "port of the primary session, 0 selects the family default")
	pf.Int("operation-timeout-seconds", 0, "bound on a single remote operation, 0 selects the family default")
	pf.String("load-format", plugin.DefaultConfig.LoadFormat, "format of pushed configuration, set or text")

	root.AddCommand(newPushCmd(a), newExecCmd(a), newPrivilegeCmd(a), newFamiliesCmd(), newInventoryCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.files, a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.collector = metrics.NewCollector()
	return nil
}

// teardown releases the inventory and writes the metrics, whatever the outcome of the command.
func (a *app) teardown(ctx context.Context) error {
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	if a.cfg.MetricsTextfile == "" {
		return nil
	}
	return a.collector.WriteTextfile(a.cfg.MetricsTextfile)
}

// credentialResolver opens the inventory on first use.
func (a *app) credentialResolver(ctx context.Context) (plugin.CredentialResolver, error) {
	if a.resolver != nil {
		return a.resolver, nil
	}
	inv := a.cfg.Inventory
	var cipher *credentials.Cipher
	if inv.Key != "" {
		c, err := credentials.NewCipher(inv.Key)
		if err != nil {
			return nil, err
		}
		cipher = c
	}

	switch {
	case inv.File != "":
		store := filestore.New(a.files, inv.File, cipher)
		if err := store.Load(); err != nil {
			return nil, err
		}
		a.resolver = store
	case inv.MongoURI != "":
		store, err := mongostore.New(ctx, inv.MongoURI, inv.Database, inv.Collection, cipher)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.resolver = store
	default:
		return nil, errors.New("no credential inventory configured, set --inventory or --mongo-uri")
	}
	return a.resolver, nil
}

// pluginOptions delivers the options shared by every plugin the command creates.
func (a *app) pluginOptions(ctx context.Context) ([]plugin.Option, error) {
	resolver, err := a.credentialResolver(ctx)
	if err != nil {
		return nil, err
	}
	return []plugin.Option{
		plugin.WithConfig(a.cfg.PluginConfig()),
		plugin.WithLogger(a.logger),
		plugin.WithResolver(resolver),
		plugin.WithFs(a.files),
	}, nil
}

// traceContext attaches the metrics hooks to ctx, and with --debug the diagnostic hooks too.
func (a *app) traceContext(ctx context.Context) context.Context {
	trace := a.collector.Trace()
	if a.cfg.Log.Debug {
		trace = plugin.Combine(trace, plugin.DiagnosticTrace(a.logger.Named("trace")))
	}
	return plugin.WithTrace(ctx, trace)
}
