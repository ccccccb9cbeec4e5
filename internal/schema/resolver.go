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

// Package schema resolves schema IRIs to compiled JSON Schemas.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const geoJSON = `{
  "$id": "#GeoJSON",
  "title": "GeoJSON",
  "entity": "NONE",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string"},
    "coordinates": {"type": "array"},
    "geometries": {"type": "array"},
    "features": {"type": "array"}
  }
}`

type document struct {
	iri    string
	name   string
	entity core.SchemaEntity
	defs   []string
	raw    []byte
}

// Resolver implements core.SchemaResolver over registered schema
// documents. Schemas compile lazily and once.
type Resolver struct {
	mu       sync.RWMutex
	docs     map[string]*document
	compiled map[string]*jsonschema.Schema
	group    singleflight.Group
	logger   *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	r := &Resolver{
		docs:     make(map[string]*document),
		compiled: make(map[string]*jsonschema.Schema),
		logger:   logger.With("component", "schema-resolver"),
	}
	if err := r.Register(core.GeoJSONSchema, []byte(geoJSON)); err != nil {
		panic(err)
	}
	return r
}

// Register adds a schema document under iri. An empty iri takes the
// document's $id. The "entity" keyword defaults to VC; $defs keys that
// look like IRIs are recorded as dependencies.
func (r *Resolver) Register(iri string, raw []byte) error {
	var head struct {
		ID     string                     `json:"$id"`
		Title  string                     `json:"title"`
		Entity string                     `json:"entity"`
		Defs   map[string]json.RawMessage `json:"$defs"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("parse schema %s: %w", iri, err)
	}
	if iri == "" {
		iri = head.ID
	}
	if iri == "" {
		return fmt.Errorf("schema has no $id")
	}
	doc := &document{
		iri:    iri,
		name:   head.Title,
		entity: core.SchemaEntity(head.Entity),
		raw:    raw,
	}
	if doc.entity == "" {
		doc.entity = core.EntityVC
	}
	for k := range head.Defs {
		if strings.HasPrefix(k, "#") {
			doc.defs = append(doc.defs, k)
		}
	}
	sort.Strings(doc.defs)

	r.mu.Lock()
	r.docs[iri] = doc
	delete(r.compiled, iri)
	r.mu.Unlock()
	r.logger.Debug("schema registered", "iri", iri, "entity", doc.entity, "defs", len(doc.defs))
	return nil
}

// LoadDir registers every *.json file below dir.
func (r *Resolver) LoadDir(dir string) (int, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "**/*.json")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range matches {
		raw, err := fs.ReadFile(fsys, m)
		if err != nil {
			return n, err
		}
		fallback := "#" + strings.TrimSuffix(path.Base(m), ".json")
		var probe struct {
			ID string `json:"$id"`
		}
		_ = json.Unmarshal(raw, &probe)
		iri := probe.ID
		if iri == "" {
			iri = fallback
		}
		if err := r.Register(iri, raw); err != nil {
			return n, err
		}
		n++
	}
	r.logger.Info("schemas loaded", "dir", dir, "count", n)
	return n, nil
}

func (r *Resolver) Has(iri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.docs[iri]
	return ok
}

func (r *Resolver) Resolve(ctx context.Context, iri string) (*core.Schema, error) {
	r.mu.RLock()
	doc, ok := r.docs[iri]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: iri=%s", core.ErrSchemaNotFound, iri)
	}
	compiled, err := r.compile(doc)
	if err != nil {
		return nil, err
	}
	return &core.Schema{
		IRI:       doc.iri,
		Name:      doc.name,
		Entity:    doc.entity,
		Defs:      append([]string(nil), doc.defs...),
		Validator: validator{compiled},
	}, nil
}

func (r *Resolver) compile(doc *document) (*jsonschema.Schema, error) {
	r.mu.RLock()
	s, ok := r.compiled[doc.iri]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	v, err, _ := r.group.Do(doc.iri, func() (any, error) {
		loc := "mem://schemas/" + url.PathEscape(doc.iri)
		c := jsonschema.NewCompiler()
		if err := c.AddResource(loc, bytes.NewReader(stripID(doc.raw))); err != nil {
			return nil, err
		}
		s, err := c.Compile(loc)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.compiled[doc.iri] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", doc.iri, err)
	}
	return v.(*jsonschema.Schema), nil
}

// stripID drops a fragment-only $id, which the compiler would otherwise
// treat as an anchor on the resource location.
func stripID(raw []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	id, _ := m["$id"].(string)
	if !strings.HasPrefix(id, "#") {
		return raw
	}
	delete(m, "$id")
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

type validator struct {
	schema *jsonschema.Schema
}

// Validate round-trips v through JSON so Go structs and typed maps
// validate the same as decoded payloads.
func (v validator) Validate(value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("prepare validation object: %w", err)
	}
	var obj any
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("prepare validation object: %w", err)
	}
	if err := v.schema.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return errors.New(ve.Error())
		}
		return err
	}
	return nil
}
