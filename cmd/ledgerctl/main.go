package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"spendly/internal/backend"
	"spendly/internal/cli"
	"spendly/internal/config"
)

// app carries what every subcommand needs. open is deferred so that
// parse-amount and --help never touch storage.
type app struct {
	cfg  *config.Config
	open func(ctx context.Context) (*backend.BackendResult, error)
	now  func() time.Time

	res *backend.BackendResult
	svc *backend.Services
}

func (a *app) services(ctx context.Context) (*backend.Services, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	res, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	a.res = res
	a.svc = backend.NewServices(res)
	return a.svc, nil
}

func (a *app) close() error {
	return a.res.Close()
}

func main() {
	cfg, logger := cli.Bootstrap()
	a := &app{
		cfg: cfg,
		now: time.Now,
		open: func(ctx context.Context) (*backend.BackendResult, error) {
			bcfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return nil, err
			}
			return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
		},
	}

	err := newRootCmd(a).ExecuteContext(context.Background())
	if cerr := a.close(); cerr != nil {
		logger.Error("Failed to release backend", "error", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the personal finance ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newProcessCmd(a),
		newEntryCmd(a),
		newTemplateCmd(a),
		newReferenceCmd(a, "category"),
		newReferenceCmd(a, "account"),
		newReferenceCmd(a, "tag"),
		newDeleteCmd(a),
		newBudgetCmd(a),
		newOverviewCmd(a),
		newParseAmountCmd(),
		newSchemaCmd(a),
	)
	return root
}
