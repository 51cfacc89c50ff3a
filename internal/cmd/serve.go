package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/switchkit/eventsocket"
	"github.com/switchkit/eventsocket/wire"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an outbound listener",
	Long: `Accept outbound connections from FreeSWITCH, answer each call and
log its channel data. Point a dialplan extension at the bound port:

  <action application="socket" data="127.0.0.1:8084 async full"/>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		logger := logrus.StandardLogger()
		l := eventsocket.NewListener(serveAddr, logger, connectionOptions())
		if err := l.Start(); err != nil {
			return err
		}
		defer l.Dispose()
		logger.WithField("port", l.Port()).Info("listening for outbound connections")

		for {
			select {
			case s, ok := <-l.Connections():
				if !ok {
					return nil
				}
				go serveSession(ctx, logger, s)
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func serveSession(ctx context.Context, logger *logrus.Logger, s *eventsocket.Session) {
	cd, err := s.Connect(ctx)
	if err != nil {
		logger.WithError(err).Warn("outbound handshake failed")
		_ = s.Close()
		return
	}
	log := logger.WithField("uuid", s.ChannelUUID())
	log.WithField("destination", cd.Header("Channel-Destination-Number")).Info("call attached")

	if err := s.Linger(ctx); err != nil {
		log.WithError(err).Debug("linger refused")
	}
	if _, err := s.Execute(ctx, s.ChannelUUID(), "answer", ""); err != nil {
		log.WithError(err).Warn("answer failed")
	}

	cancel := s.OnHangup(s.ChannelUUID(), func(ev *wire.Event) {
		log.WithField("cause", ev.HangupCause()).Info("call hung up")
	})
	defer cancel()
	<-s.Done()
	log.Info("call detached")
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", ":8084", "address to accept outbound connections on")
	RootCmd.AddCommand(serveCmd)
}
