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

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const TypeSendToGuardian = "sendToGuardianBlock"

const (
	sourceDatabase = "database"
	sourceLedger   = "hedera"
	sourceAuto     = "auto"
)

// SendToGuardian stores incoming documents and anchors them on the ledger.
type SendToGuardian struct{}

func (SendToGuardian) Type() string { return TypeSendToGuardian }

func (SendToGuardian) About() About {
	return About{
		Label:           "Send",
		Children:        ChildrenNone,
		Control:         ControlServer,
		Input:           []core.EventType{core.EventRun},
		Output:          []core.EventType{core.EventRun, core.EventRefresh, core.EventError},
		DefaultEvent:    true,
		DeprecatedProps: []string{"dataType"},
	}
}

func (SendToGuardian) ValidateOptions(scope ValidationScope) {
	cfg := scope.Config()
	switch cfg.String("dataSource") {
	case "", sourceDatabase, sourceLedger, sourceAuto:
	default:
		scope.Error("dataSource", fmt.Sprintf("Unknown data source %q", cfg.String("dataSource")))
	}
	if topic := cfg.String("topic"); topic != "" && !scope.HasTopic(topic) {
		scope.Error("topic", fmt.Sprintf("Topic %s does not exist", topic))
	}
}

func (SendToGuardian) RunAction(ctx context.Context, bc *Context, evt core.Event) (*Result, error) {
	docs := DocumentsOf(evt.Data)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", core.ErrInvalidPayload)
	}
	cfg := bc.Node.Config
	anchor := cfg.String("dataSource") != sourceDatabase
	for _, doc := range docs {
		if status := cfg.String("documentStatus"); status != "" {
			doc.Status = status
		}
		if anchor && doc.MessageID == "" {
			id, err := bc.Services.Ledger.Anchor(ctx, core.LedgerMessage{
				PolicyID: bc.PolicyKey,
				BlockID:  bc.Node.ID,
				Kind:     core.LedgerDocument,
				Payload: map[string]any{
					"document": doc.ID,
					"type":     doc.Type,
					"schema":   doc.Schema,
					"owner":    doc.Owner,
					"topic":    cfg.String("topic"),
					"data":     doc.Data,
				},
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				return nil, core.Collaborator("ledger", err)
			}
			doc.MessageID = id
		}
		if err := bc.Documents.Save(ctx, doc); err != nil {
			return nil, err
		}
	}
	res := &Result{}
	res.Emit(core.EventRun, Carry(docs...))
	res.Emit(core.EventRefresh, nil)
	return res, nil
}
