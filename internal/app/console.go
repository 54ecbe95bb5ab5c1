package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Console prints the motion and health topics as they arrive.
type Console struct {
	out     io.Writer
	log     logrus.FieldLogger
	session string // last seen producer session
}

func NewConsole(out io.Writer, log logrus.FieldLogger) *Console {
	return &Console{out: out, log: log.WithField("component", "console")}
}

// Run subscribes to both topics and blocks until ctx is done.
func (c *Console) Run(ctx context.Context, client Subscriber, motionTopic, healthTopic string) error {
	if err := subscribe(client, motionTopic, c.onMotion); err != nil {
		return err
	}
	c.log.Infof("subscribed to %s", motionTopic)

	if healthTopic != "" {
		if err := subscribe(client, healthTopic, c.onHealth); err != nil {
			return err
		}
		c.log.Infof("subscribed to %s", healthTopic)
	}

	<-ctx.Done()
	c.log.Info("shutting down")
	return nil
}

func (c *Console) onMotion(_ mqtt.Client, msg mqtt.Message) {
	var s Sample
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		c.log.Warnf("motion unmarshal error: %v", err)
		return
	}
	if s.Session != c.session {
		fmt.Fprintf(c.out, "[SESS] producer session %s\n", s.Session)
		c.session = s.Session
	}
	fmt.Fprint(c.out, formatSample(s))
}

func (c *Console) onHealth(_ mqtt.Client, msg mqtt.Message) {
	var r HealthReport
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		c.log.Warnf("health unmarshal error: %v", err)
		return
	}
	fmt.Fprint(c.out, formatHealth(r))
}

func formatSample(s Sample) string {
	return fmt.Sprintf(
		"[MOT %6d] dt=%.3fs  A=%8.2f %8.2f %8.2f  V=%8.2f %8.2f %8.2f  D=%8.2f %8.2f %8.2f\n",
		s.Seq, s.DT,
		s.Accel.X, s.Accel.Y, s.Accel.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
		s.Displacement.X, s.Displacement.Y, s.Displacement.Z,
	)
}

func formatHealth(r HealthReport) string {
	sensor := "OK"
	if !r.SensorOK {
		sensor = "FAIL (" + r.SensorError + ")"
	}
	temp := "n/a"
	if r.TemperatureC != nil {
		temp = fmt.Sprintf("%.1f°C", *r.TemperatureC)
	}
	return fmt.Sprintf("[HLTH] uptime=%.0fs sensor=%s temp=%s heap=%dB\n", r.UptimeSec, sensor, temp, r.HeapAlloc)
}
