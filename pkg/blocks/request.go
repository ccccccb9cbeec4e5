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

package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const TypeRequestVC = "requestVcDocumentBlock"

const lastDocument = "lastDocument"

// RequestVC accepts a credential subject from a user, checks it against
// the configured schema and passes the new document downstream.
type RequestVC struct{}

func (RequestVC) Type() string { return TypeRequestVC }

func (RequestVC) About() About {
	return About{
		Label:        "Request",
		Post:         true,
		Get:          true,
		Children:     ChildrenSpecial,
		Control:      ControlUI,
		Input:        []core.EventType{core.EventRun, core.EventRefresh, core.EventRestore},
		Output:       []core.EventType{core.EventRun, core.EventRefresh},
		DefaultEvent: true,
	}
}

func (RequestVC) ValidateOptions(scope ValidationScope) {
	iri := scope.Config().String("schema")
	if iri == "" {
		scope.Error("schema", `Option "schema" is not set`)
		return
	}
	scope.RequireSchema("schema", iri, core.EntityVC, core.EntityEVC)
}

func (RequestVC) GetData(ctx context.Context, bc *Context) (map[string]any, error) {
	var last core.Document
	found, err := bc.State.Get(ctx, TierShort, lastDocument, &last)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"id":         bc.Node.ID,
		"schema":     bc.Node.Config.String("schema"),
		"uiMetaData": bc.Node.Config.Options["uiMetaData"],
	}
	if found {
		data["lastDocument"] = last.ID
	}
	return data, nil
}

func (RequestVC) SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error) {
	subject, ok := payload["document"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document is required", core.ErrInvalidPayload)
	}
	iri := bc.Node.Config.String("schema")
	schema, err := bc.Services.Schemas.Resolve(ctx, iri)
	if err != nil {
		return nil, core.Collaborator("schema resolver", err)
	}
	if schema.Validator != nil {
		if err := schema.Validator.Validate(subject); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
		}
	}

	doc := &core.Document{
		ID:        uuid.New().String(),
		PolicyID:  bc.PolicyKey,
		Type:      core.DocumentVC,
		Schema:    iri,
		Owner:     bc.User.DID,
		Group:     bc.User.Group,
		Account:   bc.User.Account,
		Data:      subject,
		BlockID:   bc.Node.ID,
		CreatedAt: time.Now().UTC(),
	}
	if ref, ok := payload["ref"].(string); ok && ref != "" {
		doc.Relationships = []string{ref}
	}
	if err := bc.State.Set(ctx, TierShort, lastDocument, doc); err != nil {
		return nil, err
	}

	res := &Result{Data: map[string]any{"document": doc.ID}}
	res.Emit(core.EventRun, Carry(doc))
	res.Emit(core.EventRefresh, nil)
	return res, nil
}

func (RequestVC) RunAction(ctx context.Context, bc *Context, evt core.Event) (*Result, error) {
	if evt.Input == core.EventRestore {
		if err := bc.State.Clear(ctx, TierShort); err != nil {
			return nil, err
		}
	}
	return &Result{Update: true}, nil
}
