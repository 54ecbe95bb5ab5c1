// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthProbe is the part of the driver the health monitor polls.
type HealthProbe interface {
	Identify() error
	ReadTemperature() (float64, error)
}

// HealthReport is one health snapshot, as published on the health topic.
type HealthReport struct {
	Session      string    `json:"session"`
	Time         time.Time `json:"time"`
	UptimeSec    float64   `json:"uptime_s"`
	SensorOK     bool      `json:"sensor_ok"`
	SensorError  string    `json:"sensor_error,omitempty"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	HeapAlloc    uint64    `json:"heap_alloc_bytes"`
	HeapSys      uint64    `json:"heap_sys_bytes"`
	Goroutines   int       `json:"goroutines"`
}

// HealthMonitor periodically logs uptime, sensor presence, die temperature
// and heap usage, and optionally publishes them.
type HealthMonitor struct {
	probe    HealthProbe
	interval time.Duration
	session  string
	log      logrus.FieldLogger
	pub      Publisher // nil disables publishing
	topic    string
	started  time.Time
	now      func() time.Time
}

func NewHealthMonitor(probe HealthProbe, interval time.Duration, session string, log logrus.FieldLogger) *HealthMonitor {
	return &HealthMonitor{
		probe:    probe,
		interval: interval,
		session:  session,
		log:      log.WithField("component", "SystemMonitor"),
		started:  time.Now(),
		now:      time.Now,
	}
}

// PublishTo enables publishing reports on topic.
func (m *HealthMonitor) PublishTo(pub Publisher, topic string) {
	m.pub = pub
	m.topic = topic
}

// Run checks immediately and then every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.report(m.Check())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check takes one snapshot. Sensor failures are recorded, not returned.
func (m *HealthMonitor) Check() HealthReport {
	now := m.now()
	r := HealthReport{
		Session:   m.session,
		Time:      now,
		UptimeSec: now.Sub(m.started).Seconds(),
		SensorOK:  true,
	}

	if err := m.probe.Identify(); err != nil {
		r.SensorOK = false
		r.SensorError = err.Error()
	} else if t, err := m.probe.ReadTemperature(); err == nil {
		r.TemperatureC = &t
	} else {
		m.log.Warnf("temperature read failed: %v", err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.HeapAlloc = ms.HeapAlloc
	r.HeapSys = ms.HeapSys
	r.Goroutines = runtime.NumGoroutine()
	return r
}

const healthPublishTimeout = time.Second

func (m *HealthMonitor) report(r HealthReport) {
	m.log.Infof("Uptime: %s", time.Duration(r.UptimeSec*float64(time.Second)).Truncate(time.Second))
	if r.SensorOK {
		if r.TemperatureC != nil {
			m.log.Infof("MPU6050 OK (die temperature %.1f °C)", *r.TemperatureC)
		} else {
			m.log.Info("MPU6050 OK")
		}
	} else {
		m.log.Errorf("MPU6050 not responding (%s)", r.SensorError)
	}
	m.log.Infof("Heap alloc=%d bytes, sys=%d bytes, goroutines=%d", r.HeapAlloc, r.HeapSys, r.Goroutines)

	if m.pub == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		m.log.Errorf("json marshal error (health): %v", err)
		return
	}
	token := m.pub.Publish(m.topic, 0, true, payload)
	if !token.WaitTimeout(healthPublishTimeout) {
		m.log.Warnf("MQTT publish %s: timed out after %s", m.topic, healthPublishTimeout)
	} else if err := token.Error(); err != nil {
		m.log.Warnf("MQTT publish error (health): %v", err)
	}
}
