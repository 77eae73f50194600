package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strings"
	"syscall"
	"time"

	prime "github.com/memes/prime"
	"github.com/memes/prime/internal/affinity"
	"github.com/memes/prime/pkg/metrics"
	"github.com/memes/prime/pkg/server"
	"github.com/memes/prime/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	RunServiceName         = "run"
	DefaultGrace           = 10 * time.Second
	WorkersFlagName        = "workers"
	TimeoutFlagName        = "timeout"
	GraceFlagName          = "grace"
	PrimeMethodFlagName    = "prime-method"
	PrimeProgressFlagName  = "prime-progress"
	PrimeOpsFlagName       = "prime-ops"
	PrimeTestFlagName      = "prime-test"
	PinFlagName            = "pin"
	AddressFlagName        = "address"
	RedisTTLFlagName       = "redis-ttl"
	PrimeTestProbable      = "probable"
	PrimeTestTrialDivision = "trial"
)

// The prime-test value is not one of the supported search primitives.
var errUnknownPrimeTest = errors.New("unknown prime test")

// Implements the run sub-command.
func NewRunCmd() (*cobra.Command, error) {
	runCmd := &cobra.Command{
		Use:   RunServiceName,
		Short: "Run prime search stressors",
		Long: `Launches one or more workers that search for the next prime after an advancing start value until stopped.

The first SIGINT or SIGTERM, or the expiry of the timeout, asks every worker to finish its current search. A second request, or the expiry of the grace period that follows the timeout, abandons any search that has not finished. An optional gRPC health service reports the status of each worker, and an optional Redis DB stores each worker's result.`,
		Args: cobra.NoArgs,
		RunE: runMain,
	}
	runCmd.PersistentFlags().IntP(WorkersFlagName, "n", runtime.NumCPU(), "The number of workers to run")
	runCmd.PersistentFlags().DurationP(TimeoutFlagName, "t", 0, "Stop the workers after this duration; zero runs until interrupted or the prime-ops limit is reached")
	runCmd.PersistentFlags().Duration(GraceFlagName, DefaultGrace, "Abandon searches that have not finished this long after the timeout; zero disables")
	runCmd.PersistentFlags().String(PrimeMethodFlagName, prime.DefaultMethod.String(), "The method used to advance the search start value; one of: "+strings.Join(prime.MethodNames(), " "))
	runCmd.PersistentFlags().Bool(PrimeProgressFlagName, false, "show prime progress every 60 seconds (just first stressor instance)")
	runCmd.PersistentFlags().Uint64(PrimeOpsFlagName, 0, "Stop each worker after this many primes have been found; zero is unlimited")
	runCmd.PersistentFlags().String(PrimeTestFlagName, PrimeTestProbable, "The primality test used by the search; one of: "+PrimeTestProbable+" "+PrimeTestTrialDivision)
	runCmd.PersistentFlags().Bool(PinFlagName, false, "Pin each worker's search to an allowed CPU")
	runCmd.PersistentFlags().StringP(AddressFlagName, "a", "", "An optional address to listen for gRPC health status requests")
	runCmd.PersistentFlags().Duration(RedisTTLFlagName, 0, "Expire results stored in Redis after this duration; zero keeps them")
	if err := bindPersistentFlags(runCmd,
		WorkersFlagName,
		TimeoutFlagName,
		GraceFlagName,
		PrimeMethodFlagName,
		PrimeProgressFlagName,
		PrimeOpsFlagName,
		PrimeTestFlagName,
		PinFlagName,
		AddressFlagName,
		RedisTTLFlagName,
	); err != nil {
		return nil, err
	}
	return runCmd, nil
}

// Returns the advance method from configuration.
func methodFromConfig() (prime.Method, error) {
	method, err := prime.ParseMethod(viper.GetString(PrimeMethodFlagName))
	if err != nil {
		return prime.DefaultMethod, fmt.Errorf("invalid %s: %w", PrimeMethodFlagName, err)
	}
	return method, nil
}

// Returns a factory for the search primitive named in configuration.
func primerFromConfig() (func() prime.NextPrimer, error) {
	switch name := viper.GetString(PrimeTestFlagName); name {
	case PrimeTestProbable:
		return func() prime.NextPrimer { return prime.NewProbablePrimer() }, nil
	case PrimeTestTrialDivision:
		return func() prime.NextPrimer { return prime.NewTrialDivisionPrimer() }, nil
	default:
		return nil, fmt.Errorf("%w %q: %s must be one of: %s %s", errUnknownPrimeTest, name, PrimeTestFlagName, PrimeTestProbable, PrimeTestTrialDivision)
	}
}

// Returns the CPU that each worker should be pinned to, or nil if pinning is
// disabled or unavailable.
func pinnedCPUs(workers int) []int {
	if !viper.GetBool(PinFlagName) {
		return nil
	}
	allowed, err := affinity.Allowed()
	if err != nil || len(allowed) == 0 {
		logger.Error(err, "Unable to determine allowed CPUs; workers will not be pinned")
		return nil
	}
	cpus := make([]int, workers)
	for i := range cpus {
		cpus[i] = allowed[i%len(allowed)]
	}
	return cpus
}

// Run sub-command entrypoint. Configuration is validated before any worker
// starts.
func runMain(cmd *cobra.Command, _ []string) error {
	method, err := methodFromConfig()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s must be one of: %s\n", PrimeMethodFlagName, strings.Join(prime.MethodNames(), " "))
		return err
	}
	newPrimer, err := primerFromConfig()
	if err != nil {
		return err
	}
	workers := viper.GetInt(WorkersFlagName)
	if workers < 1 {
		workers = 1
	}
	timeout := viper.GetDuration(TimeoutFlagName)
	grace := viper.GetDuration(GraceFlagName)
	address := viper.GetString(AddressFlagName)
	redisTarget := viper.GetString(RedisTargetFlagName)
	logger := logger.WithValues("workers", workers, "method", method.String(), "timeout", timeout, "grace", grace)
	ctx := cmd.Context()
	logger.V(0).Info("Preparing telemetry")
	shutdownFunctions, err := initTelemetry(ctx, RunServiceName)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownTelemetry(ctx, shutdownFunctions)
	}()
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry(
		metrics.WithLogger(logger),
		metrics.WithMeter(otel.Meter(RunServiceName)),
		metrics.WithPrefix(RunServiceName),
	)
	reporter := prime.MultiStateReporter{prime.NewLogStateReporter(logger)}
	var statusServer *server.StatusServer
	var grpcServer *grpc.Server
	serving := new(errgroup.Group)
	if address != "" {
		logger.V(0).Info("Starting gRPC status service", "address", address)
		creds, err := newServerTransportCredentials()
		if err != nil {
			return err
		}
		statusServer, err = server.NewStatusServer(
			server.WithLogger(logger),
			server.WithGRPCServerTransportCredentials(creds),
		)
		if err != nil {
			return fmt.Errorf("failed to create status server: %w", err)
		}
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to start gRPC listener: %w", err)
		}
		grpcServer = statusServer.NewGrpcServer()
		serving.Go(func() error {
			if err := grpcServer.Serve(listener); err != nil {
				return fmt.Errorf("failed to start gRPC server: %w", err)
			}
			return nil
		})
		reporter = append(reporter, statusServer)
	}

	// Summary and progress lines are always shown, even without -v.
	workerOut := cmd.ErrOrStderr()
	if viper.GetBool(PrettyFlagName) {
		workerOut = cmd.OutOrStdout()
	}
	workerLogger := newZerologr(workerOut, max(viper.GetInt(VerboseFlagName), 1), viper.GetBool(PrettyFlagName)).
		WithValues("workers", workers, "method", method.String(), "timeout", timeout, "grace", grace)
	cpus := pinnedCPUs(workers)
	names := make([]string, workers)
	results := make([]*prime.Result, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		names[i] = fmt.Sprintf("%s-%d", AppName, i)
		options := []prime.Option{
			prime.WithLogger(workerLogger),
			prime.WithMethod(method),
			prime.WithProgress(viper.GetBool(PrimeProgressFlagName)),
			prime.WithMaxOps(viper.GetUint64(PrimeOpsFlagName)),
			prime.WithNextPrimer(newPrimer()),
			prime.WithMetrics(registry),
			prime.WithStateReporter(reporter),
			prime.WithSignalSource(prime.MultiSource{
				prime.NewTimerSource(timeout, grace),
				prime.NewOSSignalSource(syscall.SIGINT, syscall.SIGTERM),
			}),
		}
		if cpus != nil {
			options = append(options, prime.WithCPU(cpus[i]))
		}
		stressor := prime.NewStressor(names[i], i, options...)
		reporter.SetState(names[i], prime.StateInit)
		g.Go(func() error {
			result, err := stressor.Run(gctx)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	runErr := g.Wait()

	if statusServer != nil {
		statusServer.Shutdown()
		grpcServer.GracefulStop()
		if err := serving.Wait(); err != nil {
			logger.Error(err, "gRPC status service failed")
		}
	}
	if redisTarget != "" {
		if err := saveResults(ctx, redisTarget, names, results); err != nil {
			logger.Error(err, "Failed to store results", RedisTargetFlagName, redisTarget)
		}
	}
	if runErr != nil {
		return fmt.Errorf("failure running workers: %w", runErr)
	}
	if rate, ok := registry.Value(prime.MetricPrimesPerSecond); ok {
		aggregation, _ := registry.Aggregation(prime.MetricPrimesPerSecond)
		logger.V(0).Info("Workers finished", "rate", rate, "aggregation", aggregation.String())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f %s (%s of %d workers)\n", AppName, rate, prime.MetricPrimesPerSecond, aggregation, workers)
	}
	return nil
}

// Stores the worker names and the result of every worker that completed.
func saveResults(ctx context.Context, redisTarget string, names []string, results []*prime.Result) error {
	options := []store.RedisStoreOption{
		store.WithKeyPrefix(viper.GetString(RedisPrefixFlagName)),
	}
	if ttl := viper.GetDuration(RedisTTLFlagName); ttl > 0 {
		options = append(options, store.WithTTL(ttl))
	}
	redisStore := store.NewRedisStore(ctx, redisTarget, options...)
	defer redisStore.Close()
	for _, result := range results {
		if result == nil {
			continue
		}
		if err := store.SaveResult(ctx, redisStore, result); err != nil {
			return err //nolint:wrapcheck // Error is already wrapped
		}
	}
	if err := store.SaveWorkers(ctx, redisStore, names); err != nil {
		return err //nolint:wrapcheck // Error is already wrapped
	}
	return nil
}
