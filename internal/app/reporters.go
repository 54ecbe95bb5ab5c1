// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogReporter writes the three CSV-like lines the monitor UI parses:
//
//	Acceleration: x,y,z
//	Velocity: x,y,z
//	Displacement: x,y,z
type LogReporter struct {
	log logrus.FieldLogger
}

func NewLogReporter(log logrus.FieldLogger) *LogReporter {
	return &LogReporter{log: log.WithField("component", "ReadOut")}
}

func (r *LogReporter) Report(s Sample) error {
	r.log.Infof("Acceleration: %s", s.Accel.CSV())
	r.log.Infof("Velocity: %s", s.Velocity.CSV())
	r.log.Infof("Displacement: %s", s.Displacement.CSV())
	return nil
}

// MQTTReporter publishes each Sample as JSON.
type MQTTReporter struct {
	pub     Publisher
	topic   string
	timeout time.Duration
}

func NewMQTTReporter(pub Publisher, topic string) *MQTTReporter {
	return &MQTTReporter{pub: pub, topic: topic, timeout: time.Second}
}

func (r *MQTTReporter) Report(s Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("json marshal error (motion): %w", err)
	}
	token := r.pub.Publish(r.topic, 0, false, payload)
	if !token.WaitTimeout(r.timeout) {
		return fmt.Errorf("MQTT publish %s: timed out after %s", r.topic, r.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish %s: %w", r.topic, err)
	}
	return nil
}

var csvHeader = []string{"time", "dt", "ax", "ay", "az", "vx", "vy", "vz", "dx", "dy", "dz"}

// CSVRecorder appends one row per Sample, the recording format of the
// monitor UI plus time and dt.
type CSVRecorder struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// NewCSVRecorder writes the header to w. If w is an io.Closer, Close
// closes it.
func NewCSVRecorder(w io.Writer) (*CSVRecorder, error) {
	r := &CSVRecorder{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	if err := r.write(csvHeader); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	return r, nil
}

func (r *CSVRecorder) Report(s Sample) error {
	row := make([]string, 0, len(csvHeader))
	row = append(row, s.Time.Format(time.RFC3339Nano), formatFloat(s.DT, 6))
	for _, v := range [][3]float64{s.Accel.Axes(), s.Velocity.Axes(), s.Displacement.Axes()} {
		for _, x := range v {
			row = append(row, formatFloat(x, 4))
		}
	}
	return r.write(row)
}

// Close flushes and closes the underlying writer.
func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	err := r.w.Error()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (r *CSVRecorder) write(row []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Write(row); err != nil {
		return err
	}
	r.w.Flush()
	return r.w.Error()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
