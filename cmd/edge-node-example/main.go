package main

import (
	"context"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sparkplug/adapters"
	"sparkplug/edgenode"
	"sparkplug/payload"
	"sparkplug/sparkplugb"
	"sparkplug/topic"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const defaultPublishInterval = 5 * time.Second

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagMQTTUrl,
	FlagMQTTClientID,
	FlagMQTTUsername,
	FlagMQTTPassword,
	FlagGroupID,
	FlagEdgeNodeID,
	FlagPrimaryHostID,
	FlagPublishInterval,
}

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "edge-node-example",
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
				Str("service", "edge-node-example").
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
			logger.Info().Msg("edge node starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
				<-c
				logger.Warn().Msg("interrupt signal received")
				cancel()
			}()

			client := adapters.NewMQTTClient(adapters.MQTTClientParams{
				BrokerURL: ctx.String(FlagMQTTUrl.Name),
				Log:       logger.With().Str("module", "mqtt-client").Logger(),
			})

			node, err := edgenode.New(edgenode.Config{
				BrokerURL:     ctx.String(FlagMQTTUrl.Name),
				ClientID:      ctx.String(FlagMQTTClientID.Name),
				GroupID:       ctx.String(FlagGroupID.Name),
				EdgeNodeID:    ctx.String(FlagEdgeNodeID.Name),
				Username:      ctx.String(FlagMQTTUsername.Name),
				Password:      ctx.String(FlagMQTTPassword.Name),
				PrimaryHostID: ctx.String(FlagPrimaryHostID.Name),
				CommandCallback: func(t topic.Topic, p *sparkplugb.Payload) {
					logger.Info().Str("topic", t.String()).Msg("command received")
				},
				Log: logger.With().Str("module", "edge-node").Logger(),
			}, client)
			if err != nil {
				return err
			}

			if err := node.Connect(appCtx); err != nil {
				return err
			}

			birth := payload.New().AddMetricWithAlias("Temperature", 1, 20.0)
			if err := node.PublishBirth(appCtx, birth); err != nil {
				return err
			}

			logger.Info().Msg("edge node started")

			g, gctx := errgroup.WithContext(appCtx)
			g.Go(func() error {
				return runPublishLoop(gctx, node, ctx.Duration(FlagPublishInterval.Name), logger)
			})

			if err := g.Wait(); err != nil && gctx.Err() == nil {
				logger.Err(err).Msg("publish loop failed")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()
			if err := node.PublishDeath(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("failed to publish death on shutdown")
			}

			logger.Info().Msg("edge node terminating...")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("service terminated")
	}
}

func runPublishLoop(ctx context.Context, node *edgenode.Node, interval time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reading := 18 + rand.Float64()*6
			data := payload.New().AddMetricByAlias(1, reading)
			if err := node.PublishData(ctx, data); err != nil {
				logger.Warn().Err(err).Msg("failed to publish data")
			}
		}
	}
}
