package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/kgeval/internal/application/validation"
	"github.com/turtacn/kgeval/internal/infrastructure/database/neo4j"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Manage the Neo4j copy of the training graph",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load the dataset's train file into Neo4j",
		Long: "Read entity2id, relation2id and the train file of the configured dataset\n" +
			"and merge every triple into Neo4j, so validate can run with\n" +
			"--neighbor-source neo4j.",
		Args: cobra.NoArgs,
		RunE: runGraphImport,
	}
	importCmd.Flags().String("data", "", "dataset name under dataset.root")
	importCmd.Flags().String("data-root", "", "directory holding the datasets")
	bindKey(importCmd.Flags(), "data", "dataset.name")
	bindKey(importCmd.Flags(), "data-root", "dataset.root")

	cmd.AddCommand(
		importCmd,
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of edges stored in Neo4j",
			Args:  cobra.NoArgs,
			RunE:  runGraphCount,
		},
	)
	return cmd
}

func withEdges(cmd *cobra.Command, fn func(*CLIContext, *neo4j.EdgeRepository) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	d, err := neo4j.NewDriver(cmd.Context(), cliCtx.Config.Neo4j, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer d.Close(cmd.Context())
	return fn(cliCtx, neo4j.NewEdgeRepository(d, cliCtx.Logger))
}

func runGraphImport(cmd *cobra.Command, _ []string) error {
	return withEdges(cmd, func(cliCtx *CLIContext, edges *neo4j.EdgeRepository) error {
		entities, relations, train, err := validation.LoadTrainGraph(cliCtx.Config)
		if err != nil {
			return err
		}
		n, err := edges.ImportEdges(cmd.Context(), train, entities, relations)
		if err != nil {
			return err
		}
		cliCtx.Logger.Info("graph imported",
			logging.String("dataset", cliCtx.Config.Dataset.Name),
			logging.Int("edges", n),
		)
		PrintSuccess(cmd, fmt.Sprintf("imported %d edges", n))
		return nil
	})
}

func runGraphCount(cmd *cobra.Command, _ []string) error {
	return withEdges(cmd, func(_ *CLIContext, edges *neo4j.EdgeRepository) error {
		n, err := edges.CountEdges(cmd.Context())
		if err != nil {
			return err
		}
		return PrintResult(cmd, n)
	})
}
