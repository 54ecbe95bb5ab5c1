// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jacobsa/go-serial/serial"
	"github.com/relabs-tech/disp_monitor/internal/command"
	"github.com/relabs-tech/disp_monitor/internal/config"
	"github.com/relabs-tech/disp_monitor/internal/sensors"
	"github.com/sirupsen/logrus"
)

// ErrReset is the cancellation cause set by the reset command. The run
// command restarts the process when it sees it.
var ErrReset = errors.New("reset requested")

// Reconfigurer applies a new measurement setup to the sensor.
type Reconfigurer interface {
	Configure(sensors.Config) error
}

// CommandHandler applies control commands to the runtime block. It is safe
// for concurrent use by several sources.
type CommandHandler struct {
	rt    *config.Runtime
	dev   Reconfigurer
	reset func()
	log   logrus.FieldLogger
}

// NewCommandHandler returns a handler; reset is invoked by the reset command.
func NewCommandHandler(rt *config.Runtime, dev Reconfigurer, reset func(), log logrus.FieldLogger) *CommandHandler {
	return &CommandHandler{
		rt:    rt,
		dev:   dev,
		reset: reset,
		log:   log.WithField("component", "CommandListener"),
	}
}

// Handle parses and applies one line. Parse and reconfiguration errors are
// logged and returned; none of them stop the system.
func (h *CommandHandler) Handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	h.log.Infof("Received: %s", line)

	cmd, err := command.Parse(line)
	if err != nil {
		h.log.Errorf("rejected: %v", err)
		return err
	}

	switch cmd.Kind {
	case command.Reset:
		h.log.Warn("reset requested, restarting")
		h.reset()
	case command.SetRate:
		h.rt.SetPeriod(cmd.Rate)
		h.log.Infof("Set Update Rate: %d ms", cmd.Rate.Milliseconds())
	case command.SetNoiseFloor:
		h.rt.SetNoiseFloor(cmd.NoiseFloor)
		h.log.Infof("Set Accel. Noise Floor: %.2f", cmd.NoiseFloor)
	case command.SetSensorConfig:
		s := cmd.Sensor
		h.rt.SetSensor(s)
		if err := h.dev.Configure(sensors.Config(s)); err != nil {
			h.log.Errorf("MPU6050 reconfiguration failed (registers may be partially applied): %v", err)
			return err
		}
		h.log.Infof("MPU6050 reconfigured: a=%d, g=%d, d=%d, s=%d", s.AccelRange, s.GyroRange, s.DLPF, s.SampleRateDiv)
	case command.Start:
		h.rt.SetEnabled(true)
		h.log.Info("Starting the readout task")
	case command.Stop:
		h.rt.SetEnabled(false)
		h.log.Info("Stopping the readout task")
	}
	return nil
}

// ServeLines feeds every line of r to h until r is exhausted or ctx is done.
// The reader is drained on its own goroutine because blocking reads (stdin,
// serial ports) cannot be interrupted.
func ServeLines(ctx context.Context, r io.Reader, h *CommandHandler, source string) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	h.log.Infof("listening for commands on %s", source)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("%s: %w", source, err)
					}
				default:
				}
				h.log.Infof("command source %s closed", source)
				return nil
			}
			_ = h.Handle(line)
		}
	}
}

// OpenSerial opens a serial port for line commands at 8N1.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rwc, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return rwc, nil
}

// SubscribeCommands applies every message on topic as one command line.
func SubscribeCommands(client Subscriber, topic string, h *CommandHandler) error {
	if err := subscribe(client, topic, func(_ mqtt.Client, msg mqtt.Message) {
		for _, line := range strings.Split(string(msg.Payload()), "\n") {
			_ = h.Handle(line)
		}
	}); err != nil {
		return err
	}
	h.log.Infof("listening for commands on MQTT topic %s", topic)
	return nil
}
