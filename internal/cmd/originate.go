package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/switchkit/eventsocket"
)

// originateCmd represents the originate command
var originateCmd = &cobra.Command{
	Use:   "originate <endpoint> <destination>",
	Short: "Originate a call in the background",
	Long: `Run "bgapi originate <endpoint> <destination>" and wait for the
BACKGROUND_JOB result, e.g.:

  eslctl originate sofia/gateway/pstn/15551234567 9664`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		conn, err := eventsocket.Dial(ctx, address, password, logrus.StandardLogger(), connectionOptions())
		if err != nil {
			return err
		}
		defer conn.Close()

		job, err := conn.BackgroundJob(ctx, "originate "+args[0]+" "+args[1])
		if err != nil {
			return err
		}
		if !job.Success() {
			return fmt.Errorf("originate failed: %s", job.ErrorMessage())
		}
		fmt.Fprintln(cmd.OutOrStdout(), job.Body())
		return conn.Exit(ctx)
	},
}

func init() {
	RootCmd.AddCommand(originateCmd)
}
