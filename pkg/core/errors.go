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

package core

import (
	"errors"
	"fmt"
)

var (
	ErrPolicyNotLoaded   = errors.New("policy not loaded")
	ErrBlockNotFound     = errors.New("block not found")
	ErrUnknownBlockType  = errors.New("unknown block type")
	ErrUnsupportedAction = errors.New("block does not support action")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrInvalidPolicy     = errors.New("policy is not valid")

	ErrForbidden = errors.New("insufficient permissions")

	ErrAlreadyProcessing = errors.New("already processing")
	ErrPropagationLimit  = errors.New("event propagation limit exceeded")

	ErrSchemaNotFound   = errors.New("schema not found")
	ErrToolNotFound     = errors.New("tool not found")
	ErrToolHashMismatch = errors.New("tool hash mismatch")
	ErrCircularTool     = errors.New("circular tool inclusion")

	ErrAlreadyMember     = errors.New("you are already a member of the group")
	ErrGroupNotFound     = errors.New("group not found")
	ErrInvalidInvitation = errors.New("invalid invitation")

	ErrStateNotFound = errors.New("state entry not found")
	ErrStoreClosed   = errors.New("store closed")

	ErrCollaborator = errors.New("collaborator failure")
)

// ErrorClass is the coarse taxonomy exposed to callers.
type ErrorClass string

const (
	ClassConfiguration ErrorClass = "configuration"
	ClassAuthorization ErrorClass = "authorization"
	ClassConcurrency   ErrorClass = "concurrency"
	ClassCollaborator  ErrorClass = "collaborator"
)

// BlockError attributes a dispatch failure to a block.
type BlockError struct {
	BlockID   string
	BlockType string
	Err       error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %s (%s): %v", e.BlockID, e.BlockType, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// Classify maps an engine error onto the error taxonomy.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrForbidden):
		return ClassAuthorization
	case errors.Is(err, ErrAlreadyProcessing):
		return ClassConcurrency
	case errors.Is(err, ErrCollaborator):
		return ClassCollaborator
	default:
		return ClassConfiguration
	}
}

// IsRetryable reports whether a caller may repeat the failed call unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAlreadyProcessing)
}

// Collaborator marks err as a failure of an external collaborator.
func Collaborator(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrCollaborator, name, err)
}
