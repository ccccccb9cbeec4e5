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

package ledger

import (
	"context"
	"time"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// Mint submits mint and wipe requests to the token service by anchoring
// them; the anchored message id is the transaction id.
type Mint struct {
	anchor core.LedgerAnchor
}

func NewMint(anchor core.LedgerAnchor) *Mint {
	return &Mint{anchor: anchor}
}

func (m *Mint) Mint(ctx context.Context, req core.MintRequest) (*core.MintResult, error) {
	return m.submit(ctx, core.LedgerMint, req)
}

func (m *Mint) Wipe(ctx context.Context, req core.MintRequest) (*core.MintResult, error) {
	return m.submit(ctx, core.LedgerWipe, req)
}

func (m *Mint) submit(ctx context.Context, kind string, req core.MintRequest) (*core.MintResult, error) {
	now := time.Now().UTC()
	id, err := m.anchor.Anchor(ctx, core.LedgerMessage{
		PolicyID: req.PolicyID,
		Kind:     kind,
		Payload: map[string]any{
			"token_id":       req.TokenID,
			"amount":         req.Amount,
			"target_account": req.TargetAccount,
			"memo":           req.Memo,
		},
		Timestamp: now,
	})
	if err != nil {
		return nil, err
	}
	return &core.MintResult{
		TransactionID: id,
		TokenID:       req.TokenID,
		Amount:        req.Amount,
		Account:       req.TargetAccount,
		Timestamp:     now,
	}, nil
}
