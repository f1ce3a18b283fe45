package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobs-etl/internal/app"
	"jobs-etl/internal/config"
	"jobs-etl/internal/pkg/logging"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func newLogger(cfg config.Config) *logging.Logger {
	return logging.New(cfg.App.LogLevel)
}

func newContainer(lc fx.Lifecycle, cfg config.Config, logger *logging.Logger) (*app.Container, error) {
	c, err := app.NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}

// registerBackground runs the websocket hub and the interval scheduler for
// the lifetime of the app.
func registerBackground(lc fx.Lifecycle, c *app.Container) {
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go c.Hub.Run(done)
			go c.Scheduler.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			close(done)
			return nil
		},
	})
}

func registerHTTP(lc fx.Lifecycle, a *app.App, cfg config.Config, logger *logging.Logger) error {
	addr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http server listening", "addr", addr)
				if err := a.Fiber.Listen(addr); err != nil {
					logger.Error("http server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return a.Fiber.ShutdownWithContext(ctx)
		},
	})
	return nil
}

func main() {
	fxApp := fx.New(
		fx.WithLogger(func(logger *logging.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Desugar()}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newContainer,
			app.New,
		),
		fx.Invoke(
			registerBackground,
			registerHTTP,
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		log.Fatal(err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		log.Fatal(err)
	}
}
