// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type MQTTConfig struct {
	BrokerURL string
	Topic     string
}

type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MQTTPublisher implements core.ExternalEventPublisher. Events go to
// <topic>/<policy id>/<event type>.
type MQTTPublisher struct {
	topic  string
	cm     *autopaho.ConnectionManager
	pub    publisher
	logger *slog.Logger
}

func NewMQTTPublisher(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	serverURL, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("mqtt5 invalid URL: %w", err)
	}
	logger = logger.With("component", "external-events")

	cc := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			logger.Info("mqtt5 connection up", "broker", cfg.BrokerURL)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "policy-engine-" + uuid.New().String()[:8],
		},
	}

	cm, err := autopaho.NewConnection(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("mqtt5 connection: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return nil, fmt.Errorf("mqtt5 await connection: %w", err)
	}

	p := newMQTTPublisher(cfg.Topic, cm, logger)
	p.cm = cm
	logger.Info("external event publisher connected", "broker", cfg.BrokerURL, "topic", cfg.Topic)
	return p, nil
}

func newMQTTPublisher(topic string, pub publisher, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{topic: strings.TrimSuffix(topic, "/"), pub: pub, logger: logger}
}

func (p *MQTTPublisher) Publish(ctx context.Context, evt core.ExternalEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode external event: %w", err)
	}
	_, err = p.pub.Publish(ctx, &paho.Publish{
		Topic:   p.topic + "/" + evt.PolicyID + "/" + evt.Type,
		QoS:     1,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("mqtt5 publish: %w", err)
	}
	return nil
}

func (p *MQTTPublisher) Close(ctx context.Context) error {
	if p.cm != nil {
		return p.cm.Disconnect(ctx)
	}
	return nil
}
