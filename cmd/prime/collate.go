package main

import (
	"errors"
	"fmt"

	prime "github.com/memes/prime"
	"github.com/memes/prime/pkg/metrics"
	"github.com/memes/prime/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// No Redis target was configured for collation.
var errNoRedisTarget = errors.New("a redis-target is required")

// Implements the collate sub-command which reads the results of the last run
// from Redis and prints a summary.
func NewCollateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collate",
		Short: "Print the results stored by the last prime run",
		Long:  "Reads the result of each worker of the last run from Redis, then prints each worker's summary and the harmonic mean rate of primes found.",
		Args:  cobra.NoArgs,
		RunE:  collateMain,
	}
}

// Collate sub-command entrypoint.
func collateMain(cmd *cobra.Command, _ []string) error {
	redisTarget := viper.GetString(RedisTargetFlagName)
	logger := logger.V(1).WithValues(RedisTargetFlagName, redisTarget)
	if redisTarget == "" {
		return errNoRedisTarget
	}
	ctx := cmd.Context()
	redisStore := store.NewRedisStore(ctx, redisTarget, store.WithKeyPrefix(viper.GetString(RedisPrefixFlagName)))
	defer redisStore.Close()
	logger.V(0).Info("Loading worker names")
	names, err := store.LoadWorkers(ctx, redisStore)
	if err != nil {
		return err //nolint:wrapcheck // Error is already wrapped
	}
	out := cmd.OutOrStdout()
	rates := make([]float64, 0, len(names))
	for _, name := range names {
		result, err := store.LoadResult(ctx, redisStore, name)
		if errors.Is(err, store.ErrNoResult) {
			fmt.Fprintf(out, "%s: no result\n", name)
			continue
		}
		if err != nil {
			return err //nolint:wrapcheck // Error is already wrapped
		}
		rates = append(rates, result.Rate)
		fmt.Fprintf(out, prime.SummaryFormat+", %.2f %s\n", result.Name, result.Ops, result.Digits, result.Rate, prime.MetricPrimesPerSecond)
	}
	if len(rates) > 0 {
		fmt.Fprintf(out, "%s: %.2f %s (%s of %d workers)\n", AppName, metrics.HarmonicMean.Aggregate(rates), prime.MetricPrimesPerSecond, metrics.HarmonicMean, len(rates))
	}
	return nil
}
