// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// dispmon estimates displacement from an MPU6050 accelerometer and serves
// the estimate to MQTT consoles, a web dashboard and an OLED display.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/disp_monitor/internal/app"
	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "dispmon",
		Short: "MPU6050 displacement monitor",
		Long: `dispmon reads an MPU6050 accelerometer over I2C, removes the static bias
measured at startup and integrates the result into velocity and
displacement.

  run        calibrate and run the estimator (publishes to MQTT when configured)
  identify   check the sensor answers with the expected WHO_AM_I
  calibrate  measure and print the accelerometer bias
  registers  dump the documented MPU6050 registers
  console    print the motion and health topics
  web        serve the live dashboard
  display    show the estimate on an SSD1306 OLED`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitGlobal(configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (KEY=VALUE text, or .yaml)")

	root.AddCommand(
		runCmd(),
		identifyCmd(),
		calibrateCmd(),
		registersCmd(),
		consoleCmd(),
		webCmd(),
		displayCmd(),
	)

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	return app.NewLogger(os.Stderr, cfg.LogLevel)
}

var errNoBroker = errors.New("MQTT_BROKER is not set")

func connect(cfg *config.Config, clientID string, log logrus.FieldLogger) (mqtt.Client, error) {
	if cfg.MQTTBroker == "" {
		return nil, errNoBroker
	}
	return app.ConnectMQTT(cfg.MQTTBroker, clientID, log)
}
