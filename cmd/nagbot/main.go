package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/nagbot/nagbot/internal/profile"
	"github.com/nagbot/nagbot/plugin/notifier"
	"github.com/nagbot/nagbot/plugin/recognizer"
	apiv1 "github.com/nagbot/nagbot/server/router/api/v1"
	"github.com/nagbot/nagbot/server/scheduler"
	"github.com/nagbot/nagbot/server/trigger"
	"github.com/nagbot/nagbot/store"
	"github.com/nagbot/nagbot/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "nagbot",
	Short: "A natural-language reminder service",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version,
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("failed to validate profile: %w", err)
		}
		return run(instanceProfile)
	},
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("data", ".")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("nagbot")
	viper.AutomaticEnv()
}

func run(instanceProfile *profile.Profile) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return fmt.Errorf("failed to create db driver: %w", err)
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	defer storeInstance.Close()
	if err := storeInstance.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	registry := recognizer.NewRegistry()
	registry.Register(recognizer.NewEnglishBackend())
	if instanceProfile.IsModelEnabled() {
		registry.Register(recognizer.NewModelBackend(recognizer.ModelConfig{
			BaseURL: instanceProfile.ModelBaseURL,
			APIKey:  instanceProfile.ModelAPIKey,
			Model:   instanceProfile.ModelName,
			Timeout: instanceProfile.ModelTimeout,
		}, logger))
	}
	engine := recognizer.NewEngine(registry)

	dispatcher := notifier.NewDispatcher()
	dispatcher.Register(notifier.ChannelLog, notifier.NewLogSender(logger))
	if instanceProfile.WebhookURL != "" {
		dispatcher.Register(notifier.ChannelWebhook, notifier.NewWebhookSender(notifier.WebhookConfig{
			URL:     instanceProfile.WebhookURL,
			Secret:  instanceProfile.WebhookSecret,
			Timeout: instanceProfile.WebhookTimeout,
		}, logger))
	}

	bus := trigger.NewBus(logger)
	defer bus.Close()

	workflow := scheduler.New(storeInstance, dispatcher, bus, scheduler.DefaultConfig(), logger)
	if err := workflow.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer workflow.Stop()

	if err := bus.Subscribe(ctx, func(signal trigger.Signal) error {
		return workflow.HandleSignal(ctx, signal)
	}); err != nil {
		return fmt.Errorf("failed to subscribe scheduler: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	apiService := apiv1.NewAPIV1Service(instanceProfile, storeInstance, engine, bus, logger)
	apiService.RegisterRoutes(e)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", instanceProfile.Addr, instanceProfile.Port)
		logger.Info("nagbot started", "addr", addr, "mode", instanceProfile.Mode, "version", version)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
