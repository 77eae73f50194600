package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	prime "github.com/memes/prime"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	AppName                            = "prime"
	PackageName                        = "github.com/memes/prime/cmd/prime"
	DefaultOTLPTraceSamplingRatio      = 0.5
	VerboseFlagName                    = "verbose"
	PrettyFlagName                     = "pretty"
	OpenTelemetryTargetFlagName        = "otlp-target"
	OpenTelemetryInsecureFlagName      = "otlp-insecure"
	OpenTelemetryAuthorityFlagName     = "otlp-authority"
	OpenTelemetrySamplingRatioFlagName = "otlp-sampling-ratio"
	CACertFlagName                     = "cacert"
	TLSCertFlagName                    = "cert"
	TLSKeyFlagName                     = "key"
	RedisTargetFlagName                = "redis-target"
	RedisPrefixFlagName                = "redis-prefix"
)

// Version is updated from git tags during build.
var version = "unspecified"

func NewRootCmd() (*cobra.Command, error) {
	cobra.OnInitialize(initConfig)
	rootCmd := &cobra.Command{
		Use:     AppName,
		Version: version,
		Short:   "Stress CPUs by searching for ever larger prime numbers",
		Long: `Runs one or more workers that repeatedly find the next prime after an advancing big integer start value.

Each worker reports the number of primes found, the size of the largest prime, and the rate of primes found per second of search time.`,
	}
	rootCmd.PersistentFlags().CountP(VerboseFlagName, "v", "Enable verbose logging; can be repeated to increase verbosity")
	rootCmd.PersistentFlags().BoolP(PrettyFlagName, "p", false, "Disables structured JSON logging to stdout, making it easier to read")
	rootCmd.PersistentFlags().String(OpenTelemetryTargetFlagName, "", "An optional OpenTelemetry collection target that will receive metrics and traces")
	rootCmd.PersistentFlags().Bool(OpenTelemetryInsecureFlagName, false, "Disable remote TLS verification for OpenTelemetry target")
	rootCmd.PersistentFlags().String(OpenTelemetryAuthorityFlagName, "", "Set the authoritative name of the OpenTelemetry target for TLS verification, overriding hostname")
	rootCmd.PersistentFlags().Float64(OpenTelemetrySamplingRatioFlagName, DefaultOTLPTraceSamplingRatio, "Set the OpenTelemetry trace sampling ratio")
	rootCmd.PersistentFlags().StringArray(CACertFlagName, nil, "An optional CA certificate to use for remote TLS verification; can be repeated")
	rootCmd.PersistentFlags().String(TLSCertFlagName, "", "An optional TLS certificate to use")
	rootCmd.PersistentFlags().String(TLSKeyFlagName, "", "An optional TLS private key to use")
	rootCmd.PersistentFlags().String(RedisTargetFlagName, "", "An optional Redis endpoint that stores the result of each worker")
	rootCmd.PersistentFlags().String(RedisPrefixFlagName, AppName+":", "The prefix to add to every Redis key")
	if err := bindPersistentFlags(rootCmd,
		VerboseFlagName,
		PrettyFlagName,
		OpenTelemetryTargetFlagName,
		OpenTelemetryInsecureFlagName,
		OpenTelemetryAuthorityFlagName,
		OpenTelemetrySamplingRatioFlagName,
		CACertFlagName,
		TLSCertFlagName,
		TLSKeyFlagName,
		RedisTargetFlagName,
		RedisPrefixFlagName,
	); err != nil {
		return nil, err
	}
	runCmd, err := NewRunCmd()
	if err != nil {
		return nil, err
	}
	statusCmd, err := NewStatusCmd()
	if err != nil {
		return nil, err
	}
	rootCmd.AddCommand(runCmd, statusCmd, NewCollateCmd())
	return rootCmd, nil
}

// Binds each named persistent flag of the command to the viper key of the
// same name.
func bindPersistentFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind %s pflag: %w", name, err)
		}
	}
	return nil
}

// Determine the outcome of command line flags, environment variables, and an
// optional configuration file to perform initialization of the application. An
// appropriate zerolog will be assigned as the default logr sink.
func initConfig() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// Levels are applied per logger so that workers can log at a different
	// verbosity than the rest of the application.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	viper.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetConfigName("." + AppName)
	viper.SetEnvPrefix(AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	out := io.Writer(os.Stderr)
	if viper.GetBool(PrettyFlagName) {
		out = os.Stdout
	}
	logger = newZerologr(out, viper.GetInt(VerboseFlagName), viper.GetBool(PrettyFlagName))
	prime.SetLogger(logger)
	if err == nil {
		return
	}
	var cfgNotFound viper.ConfigFileNotFoundError
	if !errors.As(err, &cfgNotFound) {
		logger.Error(err, "Error reading configuration file")
	}
}

// Returns the zerolog level that matches the number of verbose flags given.
func zerologLevel(verbosity int) zerolog.Level {
	switch {
	case verbosity > 2:
		return zerolog.TraceLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Returns a logr implementation backed by a zerolog logger writing to out at
// the level implied by verbosity.
func newZerologr(out io.Writer, verbosity int, pretty bool) logr.Logger {
	if pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}
	zl := zerolog.New(out).Level(zerologLevel(verbosity)).With().Caller().Timestamp().Logger()
	return zerologr.New(&zl)
}
