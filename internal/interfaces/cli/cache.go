package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/infrastructure/database/redis"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis distance cache",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached distance of one model",
		Long: "Delete the distances cached for --model, the model id logged as\n" +
			"model_id when a checkpoint is loaded. Run it after retraining a\n" +
			"checkpoint in place so stale distances are not reused.",
		Example: "  kgeval cache purge --model 3f9a0c2e11d4b7a8",
		Args:    cobra.NoArgs,
		RunE:    runCachePurge,
	}
	purgeCmd.Flags().String("model", "", "model id whose distances are deleted")
	_ = purgeCmd.MarkFlagRequired("model")

	cmd.AddCommand(purgeCmd)
	return cmd
}

func runCachePurge(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	modelID, _ := cmd.Flags().GetString("model")

	client, err := redis.NewClient(cmd.Context(), cliCtx.Config.Redis, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := newDistanceCache(client, cliCtx.Config.Redis, cliCtx.Logger).Purge(cmd.Context(), modelID)
	if err != nil {
		return err
	}
	PrintSuccess(cmd, fmt.Sprintf("purged %d cached distances of model %s", n, modelID))
	return nil
}

// newDistanceCache applies the configured key prefix and TTL.  validate and
// cache purge must agree on both to address the same keys.
func newDistanceCache(client *redis.Client, cfg config.RedisConfig, log logging.Logger) *redis.DistanceCache {
	return redis.NewDistanceCache(client, log,
		redis.WithPrefix(cfg.KeyPrefix),
		redis.WithTTL(cfg.TTL))
}
