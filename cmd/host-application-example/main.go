package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sparkplug/adapters"
	"sparkplug/hostapp"
	"sparkplug/sparkplugb"
	"sparkplug/topic"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagMQTTUrl,
	FlagMQTTClientID,
	FlagMQTTUsername,
	FlagMQTTPassword,
	FlagHostID,
	FlagValidateSequence,
}

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "host-application-example",
		Version: "v0.0.1",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			if ctx.String(FlagLogWriter.Name) == "console" {
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			} else {
				logWriter = os.Stderr
			}

			logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "host-application-example").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
		Action: func(ctx *cli.Context) error {
			logger.Info().Msg("host application starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			sigDone := make(chan struct{})
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
				<-c
				logger.Warn().Msg("interrupt signal received")
				cancel()
				close(sigDone)
			}()

			client := adapters.NewMQTTClient(adapters.MQTTClientParams{
				BrokerURL: ctx.String(FlagMQTTUrl.Name),
				Log:       logger.With().Str("module", "mqtt-client").Logger(),
			})

			hostApp, err := hostapp.New(hostapp.Config{
				BrokerURL:        ctx.String(FlagMQTTUrl.Name),
				ClientID:         ctx.String(FlagMQTTClientID.Name),
				HostID:           ctx.String(FlagHostID.Name),
				Username:         ctx.String(FlagMQTTUsername.Name),
				Password:         ctx.String(FlagMQTTPassword.Name),
				ValidateSequence: ctx.Bool(FlagValidateSequence.Name),
				MessageCallback: func(t topic.Topic, p *sparkplugb.Payload) {
					logger.Info().Str("topic", t.String()).Int("metrics", len(p.Metrics)).Msg("message received")
				},
				Log: logger.With().Str("module", "host-application").Logger(),
			}, client)
			if err != nil {
				return err
			}

			if err := hostApp.Connect(appCtx); err != nil {
				return err
			}

			if err := hostApp.SubscribeAllGroups(appCtx); err != nil {
				return err
			}

			now := uint64(time.Now().UnixMilli())
			if err := hostApp.PublishStateBirth(appCtx, now); err != nil {
				return err
			}

			logger.Info().Msg("host application started")
			<-sigDone

			deathCtx, deathCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer deathCancel()
			if err := hostApp.PublishStateDeath(deathCtx, uint64(time.Now().UnixMilli())); err != nil {
				logger.Warn().Err(err).Msg("failed to publish STATE death on shutdown")
			}

			if err := hostApp.Disconnect(deathCtx); err != nil {
				logger.Warn().Err(err).Msg("failed to disconnect cleanly")
			}

			logger.Info().Msg("host application terminating...")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("service terminated")
	}
}
