package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

type sweepOptions struct {
	from int
	to   int
	step int
}

func newSweepCmd() *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a range of checkpoint epochs",
		Long: "Evaluate every epoch from --from to --to (inclusive) in steps of --step.\n" +
			"Each epoch writes its own reports and appends one line to valid.txt.\n" +
			"The sweep stops at the first failing epoch. A --checkpoint override must\n" +
			"contain {epoch} so that each epoch reads its own file.",
		Example: "  kgeval sweep --from 100 --to 1000 --step 100\n" +
			"  kgeval sweep --from 100 --to 300 --step 100 --checkpoint s3://models/FB13/net-{epoch}.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, opts)
		},
	}
	addEvalFlags(cmd)
	cmd.Flags().IntVar(&opts.from, "from", 0, "first epoch")
	cmd.Flags().IntVar(&opts.to, "to", 0, "last epoch (inclusive)")
	cmd.Flags().IntVar(&opts.step, "step", 1, "epoch increment")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runSweep(cmd *cobra.Command, opts *sweepOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	comps, err := openComponents(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	svc, err := comps.newService(summaryWriter(cmd, cliCtx))
	if err != nil {
		return err
	}

	outs, err := svc.Sweep(ctx, opts.from, opts.to, opts.step)
	if ferr := comps.flushMetrics(); ferr != nil {
		cliCtx.Logger.Warn("metrics export failed", logging.Err(ferr))
	}
	if err != nil {
		return err
	}
	cliCtx.Logger.Info("sweep finished", logging.Int("epochs", len(outs)))
	return printOutcomes(cmd, cliCtx, outs)
}
