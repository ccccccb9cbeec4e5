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
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const (
	TypeMint       = "mintDocumentBlock"
	TypeRetirement = "retirementDocumentBlock"
)

func validateTokenOptions(scope ValidationScope) {
	cfg := scope.Config()
	token := cfg.String("tokenId")
	switch {
	case token == "":
		scope.Error("tokenId", `Option "tokenId" is not set`)
	case !scope.HasToken(token):
		scope.Error("tokenId", fmt.Sprintf("Token with id %s does not exist", token))
	}
	if cfg.String("rule") == "" {
		scope.Error("rule", `Option "rule" is not set`)
	}
}

// amountOf evaluates the rule option: a number literal, or a field of the
// credential subject summed across documents.
func amountOf(cfg *core.BlockConfig, docs []*core.Document) (float64, error) {
	rule := cfg.String("rule")
	if n, err := strconv.ParseFloat(rule, 64); err == nil {
		return n, nil
	}
	var total float64
	for _, doc := range docs {
		v, ok := doc.Data[rule]
		if !ok {
			return 0, fmt.Errorf("%w: field %s missing in document %s", core.ErrInvalidPayload, rule, doc.ID)
		}
		switch n := v.(type) {
		case float64:
			total += n
		case int:
			total += float64(n)
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: field %s is not numeric", core.ErrInvalidPayload, rule)
			}
			total += f
		default:
			return 0, fmt.Errorf("%w: field %s is not numeric", core.ErrInvalidPayload, rule)
		}
	}
	return total, nil
}

func targetAccount(cfg *core.BlockConfig, doc *core.Document) string {
	if field := cfg.String("accountId"); field != "" {
		if s, ok := doc.Data[field].(string); ok && s != "" {
			return s
		}
	}
	return doc.Account
}

func tokenDocument(bc *Context, kind string, res *core.MintResult, docs []*core.Document) *core.Document {
	rel := make([]string, 0, len(docs))
	for _, d := range docs {
		rel = append(rel, d.ID)
	}
	return &core.Document{
		ID:       uuid.New().String(),
		PolicyID: bc.PolicyKey,
		Type:     kind,
		Owner:    docs[0].Owner,
		Group:    docs[0].Group,
		Account:  res.Account,
		Data: map[string]any{
			"tokenId":       res.TokenID,
			"amount":        res.Amount,
			"transactionId": res.TransactionID,
			"simulated":     res.Simulated,
		},
		Relationships: rel,
		MessageID:     res.TransactionID,
		BlockID:       bc.Node.ID,
		CreatedAt:     time.Now().UTC(),
	}
}

type Mint struct{}

func (Mint) Type() string { return TypeMint }

func (Mint) About() About {
	return About{
		Label:        "Mint",
		Children:     ChildrenNone,
		Control:      ControlServer,
		Input:        []core.EventType{core.EventRun},
		Output:       []core.EventType{core.EventRun, core.EventRefresh, core.EventRelease, core.EventError},
		DefaultEvent: true,
	}
}

func (Mint) ValidateOptions(scope ValidationScope) { validateTokenOptions(scope) }

func (Mint) RunAction(ctx context.Context, bc *Context, evt core.Event) (*Result, error) {
	docs := DocumentsOf(evt.Data)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: bad VC", core.ErrInvalidPayload)
	}
	cfg := bc.Node.Config
	amount, err := amountOf(cfg, docs)
	if err != nil {
		return nil, err
	}
	account := targetAccount(cfg, docs[0])
	if account == "" {
		return nil, fmt.Errorf("%w: target account is not set", core.ErrInvalidPayload)
	}
	minted, err := bc.Services.Mint.Mint(ctx, core.MintRequest{
		PolicyID:      bc.PolicyKey,
		TokenID:       cfg.String("tokenId"),
		Amount:        amount,
		TargetAccount: account,
		Memo:          cfg.String("memo"),
	})
	if err != nil {
		return nil, core.Collaborator("mint", err)
	}
	vp := tokenDocument(bc, core.DocumentMint, minted, docs)
	if err := bc.Documents.Save(ctx, vp); err != nil {
		return nil, err
	}
	res := &Result{}
	res.Emit(core.EventRun, Carry(vp))
	res.Emit(core.EventRelease, nil)
	res.Emit(core.EventRefresh, Carry(vp))
	return res, nil
}

type Retirement struct{}

func (Retirement) Type() string { return TypeRetirement }

func (Retirement) About() About {
	return About{
		Label:        "Wipe",
		Children:     ChildrenNone,
		Control:      ControlServer,
		Input:        []core.EventType{core.EventRun},
		Output:       []core.EventType{core.EventRun, core.EventRefresh, core.EventError},
		DefaultEvent: true,
	}
}

func (Retirement) ValidateOptions(scope ValidationScope) { validateTokenOptions(scope) }

func (Retirement) RunAction(ctx context.Context, bc *Context, evt core.Event) (*Result, error) {
	docs := DocumentsOf(evt.Data)
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: bad VC", core.ErrInvalidPayload)
	}
	cfg := bc.Node.Config
	amount, err := amountOf(cfg, docs)
	if err != nil {
		return nil, err
	}
	wiped, err := bc.Services.Mint.Wipe(ctx, core.MintRequest{
		PolicyID:      bc.PolicyKey,
		TokenID:       cfg.String("tokenId"),
		Amount:        amount,
		TargetAccount: targetAccount(cfg, docs[0]),
	})
	if err != nil {
		return nil, core.Collaborator("wipe", err)
	}
	doc := tokenDocument(bc, core.DocumentWipe, wiped, docs)
	if err := bc.Documents.Save(ctx, doc); err != nil {
		return nil, err
	}
	res := &Result{}
	res.Emit(core.EventRun, Carry(doc))
	res.Emit(core.EventRefresh, Carry(doc))
	return res, nil
}
