package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/disp_monitor/internal/app"
	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/spf13/cobra"
)

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Print the motion and health topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg := config.Get()
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			client, err := connect(cfg, cfg.MQTTClientIDConsole, log)
			if err != nil {
				return err
			}
			defer client.Disconnect(250)

			return app.NewConsole(os.Stdout, log).Run(ctx, client, cfg.TopicMotion, cfg.TopicHealth)
		},
	}
}

func webCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Serve the live dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg := config.Get()
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			client, err := connect(cfg, cfg.MQTTClientIDWeb, log)
			if err != nil {
				return err
			}
			defer client.Disconnect(250)

			web := app.NewWeb(log)
			web.ForwardCommandsTo(client, cfg.TopicCommand)
			return web.Run(ctx, client, cfg.TopicMotion, cfg.TopicHealth, cfg.WebServerPort)
		},
	}
}

func displayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display",
		Short: "Show displacement and velocity on an SSD1306 OLED",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg := config.Get()
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			oled, bus, err := app.OpenDisplay(cfg.DisplayI2CBus, cfg.DisplayI2CAddr)
			if err != nil {
				return err
			}
			defer bus.Close()
			defer oled.Halt()
			log.Infof("display initialized at 0x%02X", cfg.DisplayI2CAddr)

			client, err := connect(cfg, cfg.MQTTClientIDDisplay, log)
			if err != nil {
				return err
			}
			defer client.Disconnect(250)

			interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
			return app.NewDisplay(oled, log).Run(ctx, client, cfg.TopicMotion, interval)
		},
	}
}
