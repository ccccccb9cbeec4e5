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

// Package tools keeps published tool definitions addressed by message id
// and content hash.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// Registry implements core.ToolRegistry in memory.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*core.ToolDefinition
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*core.ToolDefinition),
		logger: logger.With("component", "tool-registry"),
	}
}

// Hash returns the content hash of a tool configuration.
func Hash(cfg *core.BlockConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Publish stores def, computing its hash when unset. A preset hash must
// match the content.
func (r *Registry) Publish(def *core.ToolDefinition) (string, error) {
	if def.MessageID == "" {
		return "", fmt.Errorf("%w: tool message id is not set", core.ErrInvalidPolicy)
	}
	if def.Config == nil {
		return "", fmt.Errorf("%w: tool %s has no config", core.ErrInvalidPolicy, def.MessageID)
	}
	hash, err := Hash(def.Config)
	if err != nil {
		return "", err
	}
	if def.Hash != "" && def.Hash != hash {
		return "", fmt.Errorf("%w: message=%s", core.ErrToolHashMismatch, def.MessageID)
	}
	def.Hash = hash

	r.mu.Lock()
	r.tools[def.MessageID] = def
	r.mu.Unlock()
	r.logger.Info("tool published", "message_id", def.MessageID, "name", def.Name, "hash", hash)
	return hash, nil
}

func (r *Registry) ResolveTool(ctx context.Context, messageID, hash string) (*core.ToolDefinition, error) {
	r.mu.RLock()
	def, ok := r.tools[messageID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: message=%s", core.ErrToolNotFound, messageID)
	}
	if hash != "" && def.Hash != hash {
		return nil, fmt.Errorf("%w: message=%s", core.ErrToolHashMismatch, messageID)
	}
	return def, nil
}

// LoadDir publishes every tool definition (*.yaml, *.yml) below dir.
func (r *Registry) LoadDir(dir string) (int, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "**/*.{yaml,yml}")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range matches {
		raw, err := fs.ReadFile(fsys, m)
		if err != nil {
			return n, err
		}
		var def core.ToolDefinition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return n, fmt.Errorf("parse tool %s: %w", m, err)
		}
		if _, err := r.Publish(&def); err != nil {
			return n, fmt.Errorf("publish tool %s: %w", m, err)
		}
		n++
	}
	return n, nil
}
