// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/relabs-tech/disp_monitor/internal/app"
	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/relabs-tech/disp_monitor/internal/sensors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var simulate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calibrate and run the displacement estimator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err := runProducer(ctx, config.Get(), simulate)
			if errors.Is(err, app.ErrReset) {
				return restart()
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&simulate, "simulate", false, "use a simulated MPU6050 instead of the I2C device")
	return cmd
}

// device is what the producer needs from the real sensor or the simulator.
type device interface {
	app.Accelerometer
	app.HealthProbe
	app.Reconfigurer
}

// openDevice returns the initialized and configured sensor and a function
// releasing its bus.
func openDevice(cfg *config.Config, simulate bool, log logrus.FieldLogger) (device, func(), error) {
	if simulate {
		log.Warn("using simulated MPU6050, no I2C traffic")
		return sensors.NewSim(), func() {}, nil
	}

	dev, bus, err := sensors.Open(cfg.I2CBus, cfg.MPU6050Addr, cfg.BusTimeout())
	if err != nil {
		return nil, nil, err
	}
	if err := sensors.Setup(dev, sensors.Config(cfg.Sensor()), log); err != nil {
		bus.Close()
		return nil, nil, err
	}
	return dev, func() { bus.Close() }, nil
}

// runProducer wires the sensor, the acquisition pipeline, the reporters, the
// command sources and the health monitor, and blocks until ctx is done or a
// reset is requested.
func runProducer(parent context.Context, cfg *config.Config, simulate bool) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	log.Info("starting dispmon producer (MPU6050 → displacement)")

	dev, release, err := openDevice(cfg, simulate, log)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	rt := config.NewRuntime(cfg)
	session := uuid.NewString()
	log.Infof("session %s", session)

	reporters := []app.Reporter{app.NewLogReporter(log)}

	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		client, err = app.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer, log)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		reporters = append(reporters, app.NewMQTTReporter(client, cfg.TopicMotion))
	} else {
		log.Info("MQTT_BROKER not set, publishing disabled")
	}

	if cfg.RecordCSVPath != "" {
		rec, err := openRecorder(cfg.RecordCSVPath)
		if err != nil {
			return err
		}
		defer rec.Close()
		reporters = append(reporters, rec)
		log.Infof("recording samples to %s", cfg.RecordCSVPath)
	}

	handler := app.NewCommandHandler(rt, dev, func() { cancel(app.ErrReset) }, log)
	if err := startCommandSources(ctx, cfg, client, handler, log); err != nil {
		return err
	}

	var wg sync.WaitGroup
	health := app.NewHealthMonitor(dev, cfg.HealthInterval(), session, log)
	if client != nil {
		health.PublishTo(client, cfg.TopicHealth)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Run(ctx)
	}()

	pipeline := app.NewPipeline(dev, rt, app.PipelineOptions{
		Session:            session,
		CalibrationSamples: cfg.CalibrationSamples,
		CalibrationPeriod:  cfg.CalibrationPeriod(),
	}, log, reporters...)

	err = pipeline.Run(ctx)
	cancel(nil)
	wg.Wait()

	if errors.Is(context.Cause(ctx), app.ErrReset) {
		return app.ErrReset
	}
	return err
}

func openRecorder(path string) (*app.CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create CSV recording: %w", err)
	}
	rec, err := app.NewCSVRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rec, nil
}

// startCommandSources attaches every configured command source to h. A
// serial port that cannot be opened is logged and skipped.
func startCommandSources(ctx context.Context, cfg *config.Config, client mqtt.Client, h *app.CommandHandler, log logrus.FieldLogger) error {
	serve := func(r io.Reader, source string) {
		go func() {
			if err := app.ServeLines(ctx, r, h, source); err != nil {
				log.Warnf("command source %s: %v", source, err)
			}
		}()
	}

	if cfg.CommandStdin {
		serve(os.Stdin, "stdin")
	}

	if cfg.CommandSerialPort != "" {
		port, err := app.OpenSerial(cfg.CommandSerialPort, cfg.CommandBaudRate)
		if err != nil {
			log.Warnf("serial command source disabled: %v", err)
		} else {
			go func() {
				<-ctx.Done()
				port.Close()
			}()
			serve(port, cfg.CommandSerialPort)
		}
	}

	if client != nil {
		if err := app.SubscribeCommands(client, cfg.TopicCommand, h); err != nil {
			return err
		}
	}
	return nil
}

// restart replaces the process with a fresh copy of itself, which repeats
// the whole startup sequence including calibration.
func restart() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}
