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

package validator

import (
	"errors"
	"fmt"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
	"github.com/wso2/api-platform/policy-engine/pkg/graph"
)

type resolvedSchema struct {
	schema  *core.Schema
	message string
}

// resolveSchemas checks the policy's declared schemas and every schema a
// block requires against the namespace the block lives in.
func (w *walk) resolveSchemas(p *core.PolicyConfig, root *namespace) {
	for _, iri := range p.Schemas {
		w.checkSchema(iri, root)
	}
	for _, ref := range w.refs {
		iri, ok := ref.ns.schemas[ref.name]
		if !ok {
			w.errorf(ref.node, ref.property, fmt.Sprintf("Schema with id %q does not exist", ref.name))
			continue
		}
		s, msg := w.checkSchema(iri, ref.ns)
		if msg != "" {
			w.errorf(ref.node, ref.property, msg)
			continue
		}
		if len(ref.accept) > 0 && !acceptsEntity(ref.accept, s.Entity) {
			w.errorf(ref.node, ref.property, fmt.Sprintf("Schema with id %q has entity %s, expected %v", iri, s.Entity, ref.accept))
			continue
		}
		addSchema(ref.node, iri)
	}
}

func (w *walk) checkSchema(iri string, ns *namespace) (*core.Schema, string) {
	r, ok := w.resolved[iri]
	if !ok {
		s, err := w.v.schemas.Resolve(w.ctx, iri)
		switch {
		case errors.Is(err, core.ErrSchemaNotFound):
			r = resolvedSchema{message: fmt.Sprintf("Schema with id %q does not exist", iri)}
		case err != nil:
			r = resolvedSchema{message: fmt.Sprintf("Schema with id %q is not supported", iri)}
		default:
			r = resolvedSchema{schema: s}
		}
		w.resolved[iri] = r
	}

	msg := r.message
	if msg == "" {
		for _, def := range r.schema.Defs {
			if !ns.hasSchemaIRI(def) {
				msg = fmt.Sprintf("Schema with id %q is not supported", iri)
				break
			}
		}
	}

	sr, ok := w.schemaResults[iri]
	if !ok {
		sr = &core.SchemaResult{IRI: iri, IsValid: true}
		w.schemaResults[iri] = sr
	}
	if msg != "" {
		sr.IsValid = false
		if !containsString(sr.Errors, msg) {
			sr.Errors = append(sr.Errors, msg)
		}
	}
	return r.schema, msg
}

func (ns *namespace) hasSchemaIRI(iri string) bool {
	if _, ok := ns.schemas[iri]; ok {
		return true
	}
	for _, v := range ns.schemas {
		if v == iri {
			return true
		}
	}
	return false
}

func acceptsEntity(accept []core.SchemaEntity, e core.SchemaEntity) bool {
	for _, a := range accept {
		if a == e {
			return true
		}
	}
	return false
}

func addSchema(n *graph.Node, iri string) {
	if !containsString(n.Schemas, iri) {
		n.Schemas = append(n.Schemas, iri)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
