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

// Package ledger anchors policy records on the distributed ledger and
// adapts token operations onto it. Dry-run instances use a Recorder.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer used by the anchor.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAnchor writes ledger messages to a topic, keyed by policy id so one
// policy's records keep their order within a partition.
type KafkaAnchor struct {
	topic  string
	writer messageWriter
	logger *slog.Logger
}

func NewKafkaAnchor(cfg KafkaConfig, logger *slog.Logger) *KafkaAnchor {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	logger.Info("ledger anchor connected",
		"brokers", strings.Join(cfg.Brokers, ","),
		"topic", cfg.Topic,
	)
	return newKafkaAnchor(cfg.Topic, w, logger)
}

func newKafkaAnchor(topic string, w messageWriter, logger *slog.Logger) *KafkaAnchor {
	return &KafkaAnchor{topic: topic, writer: w, logger: logger.With("component", "ledger")}
}

func (a *KafkaAnchor) Anchor(ctx context.Context, msg core.LedgerMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode ledger message: %w", err)
	}
	err = a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.PolicyID),
		Value: value,
		Time:  msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "block_id", Value: []byte(msg.BlockID)},
		},
	})
	if err != nil {
		a.logger.Error("ledger write failed", "policy_id", msg.PolicyID, "kind", msg.Kind, "error", err)
		return "", err
	}
	a.logger.Debug("ledger message anchored", "id", msg.ID, "policy_id", msg.PolicyID, "kind", msg.Kind)
	return msg.ID, nil
}

func (a *KafkaAnchor) Close() error {
	return a.writer.Close()
}
