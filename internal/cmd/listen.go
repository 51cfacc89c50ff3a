package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/switchkit/eventsocket"
	"github.com/switchkit/eventsocket/wire"
)

var listenCustom []string

var (
	eventNameColor = color.New(color.FgCyan, color.Bold)
	channelColor   = color.New(color.FgYellow)
	hangupColor    = color.New(color.FgRed)
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen [EVENT_NAME]...",
	Short: "Subscribe to events and dump them",
	Long: `Subscribe to the given event names (UPPER_UNDERSCORE, default ALL)
and print each event as it arrives. Interrupt to exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		conn, err := eventsocket.Dial(ctx, address, password, logrus.StandardLogger(), connectionOptions())
		if err != nil {
			return err
		}
		defer conn.Close()

		names := []wire.EventName{wire.EventAll}
		if len(args) > 0 {
			names = names[:0]
			for _, a := range args {
				names = append(names, wire.EventNameFromWire(a))
			}
		}
		if err := conn.SubscribeEvents(ctx, names...); err != nil {
			return err
		}
		if len(listenCustom) > 0 {
			if err := conn.SubscribeCustomEvents(ctx, listenCustom...); err != nil {
				return err
			}
		}

		events := conn.Events()
		defer events.Close()
		out := cmd.OutOrStdout()
		for {
			select {
			case ev, ok := <-events.C():
				if !ok {
					return nil
				}
				printEvent(out, ev)
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func printEvent(out io.Writer, ev *wire.Event) {
	name := eventNameColor.Sprint(ev.RawName())
	if ev.Name() == wire.EventChannelHangup {
		name = hangupColor.Sprint(ev.RawName())
	}
	line := name
	if id := ev.ChannelUUID(); id != "" {
		line += " " + channelColor.Sprint(id)
	}
	if sub := ev.Subclass(); sub != "" {
		line += " [" + sub + "]"
	}
	fmt.Fprintln(out, line)
}

func init() {
	listenCmd.Flags().StringSliceVar(&listenCustom, "custom", nil, "CUSTOM event subclasses to subscribe")
	RootCmd.AddCommand(listenCmd)
}
