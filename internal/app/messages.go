// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/disp_monitor/internal/imu"
	"github.com/sirupsen/logrus"
)

// Sample is one reported acquisition cycle, as published on the motion topic.
type Sample struct {
	Session      string    `json:"session"` // changes on every process start
	Seq          uint64    `json:"seq"`
	Time         time.Time `json:"time"`
	DT           float64   `json:"dt"` // seconds
	Accel        imu.Vec3  `json:"accel"`
	Velocity     imu.Vec3  `json:"velocity"`
	Displacement imu.Vec3  `json:"displacement"`
}

// Publisher is the publishing half of an MQTT client.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Subscriber is the subscribing half of an MQTT client.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// ConnectMQTT connects to broker with clientID.
func ConnectMQTT(broker, clientID string, log logrus.FieldLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnf("MQTT connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	log.Infof("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

func subscribe(client Subscriber, topic string, handler mqtt.MessageHandler) error {
	token := client.Subscribe(topic, 0, handler)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}
