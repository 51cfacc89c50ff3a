package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/switchkit/eventsocket"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show switch status",
	Long: `Run "api status" against the switch and print the response body.

  Use the global --address and --password flags to pick the socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		conn, err := eventsocket.Dial(ctx, address, password, logrus.StandardLogger(), connectionOptions())
		if err != nil {
			return err
		}
		defer conn.Close()

		res, err := conn.SendAPI(ctx, "status")
		if err != nil {
			return err
		}
		if !res.Success() {
			return fmt.Errorf("status failed: %s", res.ErrorMessage())
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Body())
		return conn.Exit(ctx)
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}
