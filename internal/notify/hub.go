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

// Package notify tells the outside world about policy activity: block
// update hints go to connected users over websocket, and external events
// are published over MQTT.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const defaultBuffer = 16

// BlockUpdate is the message pushed to subscribers.
type BlockUpdate struct {
	Type      string         `json:"type"`
	PolicyID  string         `json:"policyId"`
	BlockID   string         `json:"blockId"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type subscriber struct {
	id     string
	user   core.User
	policy string
	send   chan []byte
	done   chan struct{}
}

// Hub keeps one websocket per subscriber. A subscriber names its policy
// with ?policy= and is identified by core.UserFromRequest.
type Hub struct {
	port        int
	upgrader    websocket.Upgrader
	server      *http.Server
	logger      *slog.Logger
	subscribers sync.Map
}

func NewHub(port int, logger *slog.Logger) *Hub {
	return &Hub{
		port: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "notify"),
	}
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/updates", h.handleConnection)
	return mux
}

func (h *Hub) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.port),
		Handler: h.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.server.Shutdown(shutdownCtx)
	}()

	h.logger.Info("update hub starting", "port", h.port)
	if err := h.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *Hub) Stop(ctx context.Context) error {
	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

// BlockUpdated implements core.Notifier. An empty userDID reaches every
// subscriber of the policy.
func (h *Hub) BlockUpdated(policyID, blockID, userDID string, data map[string]any) {
	msg, err := json.Marshal(BlockUpdate{
		Type:      "update",
		PolicyID:  policyID,
		BlockID:   blockID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("marshal update failed", "policy_id", policyID, "block_id", blockID, "error", err)
		return
	}
	h.subscribers.Range(func(_, val any) bool {
		s := val.(*subscriber)
		if s.policy != "" && s.policy != policyID {
			return true
		}
		if userDID != "" && s.user.DID != userDID {
			return true
		}
		select {
		case s.send <- msg:
		default:
			h.logger.Warn("subscriber buffer full, dropping update", "subscriber", s.id, "block_id", blockID)
		}
		return true
	})
}

func (h *Hub) SubscriberCount() int {
	count := 0
	h.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (h *Hub) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}

	s := &subscriber{
		id:     uuid.New().String(),
		user:   core.UserFromRequest(r),
		policy: r.URL.Query().Get("policy"),
		send:   make(chan []byte, defaultBuffer),
		done:   make(chan struct{}),
	}
	h.subscribers.Store(s.id, s)

	defer func() {
		h.subscribers.Delete(s.id)
		close(s.done)
		conn.Close()
		h.logger.Info("subscriber disconnected", "subscriber", s.id, "user", s.user.DID)
	}()

	h.logger.Info("subscriber connected", "subscriber", s.id, "user", s.user.DID, "policy", s.policy)

	go h.writeLoop(conn, s)
	h.readLoop(conn, s)
}

func (h *Hub) writeLoop(conn *websocket.Conn, s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Error("ws write failed", "subscriber", s.id, "error", err)
				return
			}
		}
	}
}

// readLoop drains client frames until the connection closes.
func (h *Hub) readLoop(conn *websocket.Conn, s *subscriber) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("ws read error", "subscriber", s.id, "error", err)
			}
			return
		}
	}
}
