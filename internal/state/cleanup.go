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

package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// CleanupWorker periodically sweeps expired state entries.
type CleanupWorker struct {
	store    core.StateStore
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

func NewCleanupWorker(store core.StateStore, interval time.Duration, logger *slog.Logger) *CleanupWorker {
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &CleanupWorker{
		store:    store,
		interval: interval,
		logger:   logger.With("component", "state-cleanup"),
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (c *CleanupWorker) Start(ctx context.Context) {
	c.logger.Info("cleanup worker started", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleanup worker stopping")
			return
		case <-c.stopChan:
			c.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *CleanupWorker) Stop() {
	close(c.stopChan)
}

func (c *CleanupWorker) sweep(ctx context.Context) {
	n, err := c.store.Sweep(ctx, time.Now())
	if err != nil {
		c.logger.Error("sweep failed", "error", err)
		return
	}
	if n > 0 {
		c.logger.Debug("expired state entries removed", "count", n)
	}
}
