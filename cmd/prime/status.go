package main

import (
	"fmt"
	"time"

	"github.com/memes/prime/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

const (
	StatusServiceName    = "status"
	MaxTimeoutFlagName   = "max-timeout"
	AuthorityFlagName    = "authority"
	DefaultStatusTimeout = 10 * time.Second
)

// Implements the status sub-command which queries the gRPC health service of a
// running prime process.
func NewStatusCmd() (*cobra.Command, error) {
	statusCmd := &cobra.Command{
		Use:   StatusServiceName + " target [worker...]",
		Short: "Query the status of prime workers",
		Long: `Connects to the gRPC health service of a prime run and prints the serving status of each named worker.

If no workers are named the overall status is printed; it is SERVING while any worker is running.`,
		Args: cobra.MinimumNArgs(1),
		RunE: statusMain,
	}
	statusCmd.PersistentFlags().DurationP(MaxTimeoutFlagName, "m", DefaultStatusTimeout, "The maximum timeout for a status request")
	statusCmd.PersistentFlags().String(AuthorityFlagName, "", "Set the authoritative name of the status target for TLS verification, overriding hostname")
	if err := bindPersistentFlags(statusCmd, MaxTimeoutFlagName, AuthorityFlagName); err != nil {
		return nil, err
	}
	return statusCmd, nil
}

// Status sub-command entrypoint.
func statusMain(cmd *cobra.Command, args []string) error {
	target := args[0]
	workers := args[1:]
	if len(workers) == 0 {
		workers = []string{""}
	}
	logger := logger.V(1).WithValues("target", target, "workers", workers)
	ctx := cmd.Context()
	logger.V(0).Info("Preparing telemetry")
	shutdownFunctions, err := initTelemetry(ctx, StatusServiceName)
	defer shutdownTelemetry(ctx, shutdownFunctions)
	if err != nil {
		return err
	}
	creds, err := newClientTransportCredentials()
	if err != nil {
		return err
	}
	statusClient, err := client.NewStatusClient(
		client.WithLogger(logger),
		client.WithMaxTimeout(viper.GetDuration(MaxTimeoutFlagName)),
		client.WithTracer(otel.Tracer(StatusServiceName)),
		client.WithMeter(otel.Meter(StatusServiceName)),
		client.WithPrefix(StatusServiceName),
		client.WithTransportCredentials(creds),
		client.WithAuthority(viper.GetString(AuthorityFlagName)),
	)
	if err != nil {
		return fmt.Errorf("failed to create status client: %w", err)
	}
	conn, err := statusClient.Connect(target)
	if err != nil {
		return err //nolint:wrapcheck // Error is already wrapped
	}
	defer conn.Close()
	for _, worker := range workers {
		status, err := statusClient.Check(ctx, conn, worker)
		if err != nil {
			return fmt.Errorf("failed to get status of %q: %w", worker, err)
		}
		name := worker
		if name == "" {
			name = AppName
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, status)
	}
	return nil
}
