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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

// Recorder keeps anchored messages and token operations in memory. It
// backs dry-run instances and never reaches the network.
type Recorder struct {
	mu       sync.Mutex
	messages []core.LedgerMessage
	tokens   []core.MintResult
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Anchor(_ context.Context, msg core.LedgerMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = "dry-run:" + uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return msg.ID, nil
}

func (r *Recorder) Mint(ctx context.Context, req core.MintRequest) (*core.MintResult, error) {
	return r.token(ctx, core.LedgerMint, req)
}

func (r *Recorder) Wipe(ctx context.Context, req core.MintRequest) (*core.MintResult, error) {
	return r.token(ctx, core.LedgerWipe, req)
}

func (r *Recorder) token(ctx context.Context, kind string, req core.MintRequest) (*core.MintResult, error) {
	id, _ := r.Anchor(ctx, core.LedgerMessage{
		PolicyID: req.PolicyID,
		Kind:     kind,
		Payload:  map[string]any{"token_id": req.TokenID, "amount": req.Amount, "target_account": req.TargetAccount},
	})
	res := core.MintResult{
		TransactionID: id,
		TokenID:       req.TokenID,
		Amount:        req.Amount,
		Account:       req.TargetAccount,
		Simulated:     true,
		Timestamp:     time.Now().UTC(),
	}
	r.mu.Lock()
	r.tokens = append(r.tokens, res)
	r.mu.Unlock()
	return &res, nil
}

// Messages returns a copy of everything anchored so far.
func (r *Recorder) Messages() []core.LedgerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.LedgerMessage(nil), r.messages...)
}

func (r *Recorder) Tokens() []core.MintResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.MintResult(nil), r.tokens...)
}
