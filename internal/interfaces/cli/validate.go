package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/kgeval/internal/application/validation"
	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

// addEvalFlags registers the run flags shared by validate and sweep.  Each
// overrides one config key.
func addEvalFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("data", "", "dataset name under dataset.root")
	f.String("data-root", "", "directory holding the datasets")
	f.String("out-root", "", "trainer output root (checkpoints and reports)")
	f.String("checkpoint", "", "checkpoint path or s3:// URI (overrides the composed path; {epoch} expands per epoch)")
	f.String("backend", "", "model backend (local, grpc)")
	f.String("grpc-target", "", "remote EmbeddingService address for the grpc backend")
	f.Int("dim", 0, "embedding dimension tag")
	f.Int("margin-pos", 0, "positive margin tag")
	f.Int("margin-neg", 0, "negative margin tag")
	f.Float64("rate", 0, "learning rate tag")
	f.Int("batch", 0, "training batch tag")
	f.String("method", "", "negative sampling method tag")
	f.Int("start", 0, "first candidate margin (inclusive)")
	f.Int("end", 0, "last candidate margin (exclusive)")
	f.String("test-name", "", "labeled triple file inside the dataset directory")
	f.Int64("seed", 0, "feature truncation seed (0 seeds from the clock)")
	f.Int("batch-size", 0, "triples scored per batch")
	f.Duration("timeout", 0, "bound on a whole run (0 disables)")
	f.String("neighbor-source", "", "neighbor source (file, neo4j)")

	for flag, key := range map[string]string{
		"data":            "dataset.name",
		"data-root":       "dataset.root",
		"out-root":        "checkpoint.out_root",
		"checkpoint":      "checkpoint.path",
		"backend":         "checkpoint.backend",
		"grpc-target":     "grpc.target",
		"dim":             "eval.dim",
		"margin-pos":      "eval.margin_pos",
		"margin-neg":      "eval.margin_neg",
		"rate":            "eval.rate",
		"batch":           "eval.batch",
		"method":          "eval.method",
		"start":           "eval.start",
		"end":             "eval.end",
		"test-name":       "eval.test_name",
		"seed":            "eval.seed",
		"batch-size":      "eval.batch_size",
		"timeout":         "eval.timeout",
		"neighbor-source": "dataset.neighbor_source",
	} {
		bindKey(f, flag, key)
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Evaluate one checkpoint epoch and write its reports",
		Example: "  kgeval validate --data FB13 --epoch 300\n" +
			"  kgeval validate --checkpoint s3://models/FB13/net-300.json --epoch 300",
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
	addEvalFlags(cmd)
	cmd.Flags().Int("epoch", 0, "checkpoint epoch to evaluate")
	bindKey(cmd.Flags(), "epoch", "eval.epoch")
	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
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

	out, err := svc.Validate(ctx, cliCtx.Config.Eval.Epoch)
	if err != nil {
		return err
	}
	if err := comps.flushMetrics(); err != nil {
		cliCtx.Logger.Warn("metrics export failed", logging.Err(err))
	}
	return printOutcomes(cmd, cliCtx, []*validation.Outcome{out})
}

// summaryWriter is where the service prints "<epoch>\t<accuracy>".  Only the
// text format keeps it; json and table print the run records instead.
func summaryWriter(cmd *cobra.Command, cliCtx *CLIContext) io.Writer {
	if textOutput(cliCtx) {
		return cmd.OutOrStdout()
	}
	return io.Discard
}

func textOutput(cliCtx *CLIContext) bool {
	return cliCtx.OutputFormat == "" || strings.EqualFold(cliCtx.OutputFormat, "text")
}

func printOutcomes(cmd *cobra.Command, cliCtx *CLIContext, outs []*validation.Outcome) error {
	if textOutput(cliCtx) {
		return nil
	}
	recs := make(runTable, 0, len(outs))
	for _, o := range outs {
		recs = append(recs, o.Record)
	}
	if strings.EqualFold(cliCtx.OutputFormat, "json") && len(recs) == 1 {
		return PrintResult(cmd, recs[0])
	}
	return PrintResult(cmd, recs)
}

// runTable renders one row per relation of each run.
type runTable []*run.Record

func (t runTable) TableHeaders() []string {
	return []string{"EPOCH", "RELATION", "MARGIN", "CORRECT", "TOTAL", "ACCURACY"}
}

func (t runTable) TableRows() [][]string {
	var rows [][]string
	for _, rec := range t {
		epoch := strconv.Itoa(rec.Epoch)
		for _, rel := range rec.Relations {
			rows = append(rows, []string{
				epoch, rel.Name, strconv.Itoa(rel.Margin),
				strconv.Itoa(rel.Correct), strconv.Itoa(rel.Total),
				fmt.Sprintf("%.4f", rel.Accuracy),
			})
		}
		rows = append(rows, []string{
			epoch, "(all)", "", strconv.Itoa(rec.Correct), strconv.Itoa(rec.Total),
			fmt.Sprintf("%.4f", rec.Accuracy),
		})
	}
	return rows
}
