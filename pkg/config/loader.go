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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Policies    PoliciesConfig    `yaml:"policies"`
	Validation  ValidationConfig  `yaml:"validation"`
	State       StateConfig       `yaml:"state"`
	Groups      StoreConfig       `yaml:"groups"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Notify      NotifyConfig      `yaml:"notify"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Schemas     DirConfig         `yaml:"schemas"`
	Tools       DirConfig         `yaml:"tools"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	MetricsPort     int           `yaml:"metricsPort" validate:"min=0,max=65535"`
	UpdatesPort     int           `yaml:"updatesPort" validate:"min=0,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"min=0"`
}

type PoliciesConfig struct {
	Dir           string        `yaml:"dir" validate:"required"`
	WatchInterval time.Duration `yaml:"watchInterval" validate:"min=0"`
	DryRun        bool          `yaml:"dryRun"`
	MaxDepth      int           `yaml:"maxDepth" validate:"min=0"`
}

// ValidationConfig uses pointers so an omitted flag keeps its default.
type ValidationConfig struct {
	Reachability       *bool `yaml:"reachability"`
	StructuralFallback *bool `yaml:"structuralFallback"`
}

func (v ValidationConfig) ReachabilityEnabled() bool {
	return v.Reachability == nil || *v.Reachability
}

func (v ValidationConfig) StructuralFallbackEnabled() bool {
	return v.StructuralFallback == nil || *v.StructuralFallback
}

// StoreConfig selects a memory or redis backend.
type StoreConfig struct {
	Type      string `yaml:"type" validate:"oneof=memory redis"`
	Addr      string `yaml:"addr" validate:"required_if=Type redis"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"min=0"`
	KeyPrefix string `yaml:"keyPrefix"`
}

type StateConfig struct {
	StoreConfig     `yaml:",inline"`
	ShortTTL        time.Duration `yaml:"shortTTL" validate:"min=0"`
	LongTTL         time.Duration `yaml:"longTTL" validate:"min=0"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" validate:"min=0"`
}

type LedgerConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic   string   `yaml:"topic"`
}

type NotifyConfig struct {
	MQTTBrokerURL string `yaml:"mqttBrokerUrl" validate:"omitempty,url"`
	Topic         string `yaml:"topic"`
}

type CredentialsConfig struct {
	IssuerDID     string        `yaml:"issuerDid"`
	SigningSecret string        `yaml:"signingSecret"`
	TTL           time.Duration `yaml:"ttl" validate:"min=0"`
}

type DirConfig struct {
	Dir string `yaml:"dir"`
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.UpdatesPort == 0 {
		c.Server.UpdatesPort = 8090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Policies.Dir == "" {
		c.Policies.Dir = "/etc/policy-engine/policies"
	}
	if c.Policies.WatchInterval == 0 {
		c.Policies.WatchInterval = 5 * time.Second
	}
	if c.Policies.MaxDepth == 0 {
		c.Policies.MaxDepth = 64
	}
	if c.State.Type == "" {
		c.State.Type = "memory"
	}
	if c.State.ShortTTL == 0 {
		c.State.ShortTTL = 30 * time.Minute
	}
	if c.State.CleanupInterval == 0 {
		c.State.CleanupInterval = time.Minute
	}
	if c.Groups.Type == "" {
		c.Groups.Type = "memory"
	}
	if c.Ledger.Topic == "" {
		c.Ledger.Topic = "policy-ledger"
	}
	if c.Notify.Topic == "" {
		c.Notify.Topic = "policy-engine/events"
	}
	if c.Credentials.IssuerDID == "" {
		c.Credentials.IssuerDID = "did:policy-engine:issuer"
	}
}

// Load reads the engine configuration at path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadPolicy reads a policy document. JSON documents parse as YAML. A
// policy without an id takes the file name.
func LoadPolicy(path string) (*core.PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var p core.PolicyConfig
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if p.Root == nil {
		return nil, fmt.Errorf("parse policy %s: no config block", path)
	}
	if p.ID == "" {
		base := filepath.Base(path)
		p.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &p, nil
}
