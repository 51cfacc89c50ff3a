// Package cmd implements the eslctl debugging CLI: small commands for
// poking a FreeSWITCH over its event socket.
package cmd

import (
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/guregu/null.v3"

	"github.com/switchkit/eventsocket"
	"github.com/switchkit/eventsocket/types"
)

var (
	address  string
	password string
	timeout  time.Duration
	verbose  bool
)

// envOverrides are picked up when the corresponding flag is left at its
// default.
type envOverrides struct {
	Address  null.String        `envconfig:"ESLCTL_ADDRESS"`
	Password null.String        `envconfig:"ESLCTL_PASSWORD"`
	Timeout  types.NullDuration `envconfig:"ESLCTL_TIMEOUT"`
}

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:           "eslctl",
	Short:         "Poke a FreeSWITCH event socket",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return applyEnv(cmd)
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		logrus.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&address, "address", "a", "127.0.0.1:8021", "host:port of the event socket")
	RootCmd.PersistentFlags().StringVarP(&password, "password", "p", "ClueCon", "event socket password")
	RootCmd.PersistentFlags().DurationVar(&timeout, "timeout", eventsocket.DefaultResponseTimeout, "reply timeout")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func setupLogging() {
	logrus.SetOutput(colorable.NewColorableStderr())
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors: isatty.IsTerminal(os.Stderr.Fd()),
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func applyEnv(cmd *cobra.Command) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	if env.Address.Valid && !cmd.Flags().Changed("address") {
		address = env.Address.String
	}
	if env.Password.Valid && !cmd.Flags().Changed("password") {
		password = env.Password.String
	}
	if env.Timeout.Valid && !cmd.Flags().Changed("timeout") {
		timeout = env.Timeout.TimeDuration()
	}
	return nil
}

func connectionOptions() eventsocket.Options {
	return eventsocket.Options{
		ResponseTimeout: types.NullDurationFrom(timeout),
	}
}
