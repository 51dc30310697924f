// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xataio/mystream/cmd/config"
	"github.com/xataio/mystream/internal/profiling"
	"github.com/xataio/mystream/pkg/otel"
)

// Version is the mystream version
var (
	Version = "development"
	Env     string
)

const (
	trueStr          = "true"
	profilingAddress = "localhost:6060"
)

func Prepare() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mystream",
		Short:        "mystream streams row changes from MySQL databases into a single search index",
		SilenceUsage: true,
		Version:      version(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			return nil
		},
	}

	// config keys already carry the MYSTREAM_ prefix, an env prefix would
	// double it
	viper.AutomaticEnv()

	// Flag definition

	// root cmd
	rootCmd.PersistentFlags().StringP("config", "c", "", ".env or .yaml config file to use with mystream if any")
	rootCmd.PersistentFlags().String("log-level", "debug", "log level for the application. One of trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().Bool("log-json", false, "Whether to output logs as json lines instead of the console format")

	// run cmd
	runCmd.Flags().StringSlice("databases", nil, "List of MySQL databases to stream from, one source per database")
	runCmd.Flags().String("elasticsearch-url", "", "Elasticsearch URL of the target index")
	runCmd.Flags().String("opensearch-url", "", "OpenSearch URL of the target index")
	runCmd.Flags().Bool("profile", false, "Whether to expose a /debug/pprof endpoint on "+profilingAddress)
	runCmd.Flags().BoolVar(&initFlag, "init", false, "Whether to initialise the checkpoint store and the index before starting replication")

	// init cmd
	initCmd.Flags().String("checkpoint-postgres-url", "", "Postgres URL where the checkpoint schema will be created")

	// status cmd
	statusCmd.Flags().Bool("json", false, "Output the status in JSON format")

	// Flag binding for root cmd
	rootFlagBinding(rootCmd)

	// register subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	return rootCmd
}

// Execute executes the root command.
func Execute() error {
	cmd := Prepare()
	return cmd.Execute()
}

func withSignalWatcher(fn func(ctx context.Context) error) func(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		<-sigc
		cancel()
	}()

	return func(cmd *cobra.Command, args []string) error {
		defer cancel()
		return fn(ctx)
	}
}

func withProfiling(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Lookup("profile").Value.String() == trueStr {
			srv := profiling.StartProfilingServer(profilingAddress)
			defer srv.Close()
		}
		return fn(cmd, args)
	}
}

func rootFlagBinding(cmd *cobra.Command) {
	viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("MYSTREAM_LOG_LEVEL", cmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("MYSTREAM_LOG_JSON", cmd.PersistentFlags().Lookup("log-json"))
}

// bindFlag binds a changed flag to every given key, so it overwrites the
// value whether it comes from a yaml file, an env file or the environment.
func bindFlag(flag *pflag.Flag, keys ...string) {
	if flag == nil || !flag.Changed {
		return
	}
	for _, key := range keys {
		viper.BindPFlag(key, flag)
	}
}

func version() string {
	if Env != "" {
		return Env + " (" + Version + ")"
	}
	return Version
}

func newInstrumentationProvider() (otel.InstrumentationProvider, error) {
	cfg, err := config.ParseInstrumentationConfig()
	if err != nil {
		return nil, fmt.Errorf("parsing instrumentation config: %w", err)
	}

	p, err := otel.NewInstrumentationProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialisating instrumentation provider: %w", err)
	}
	return p, nil
}
