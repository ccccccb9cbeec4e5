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

	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const (
	TypeReport     = "reportBlock"
	TypeReportItem = "reportItemBlock"
)

// Report status values stored in the long tier.
const (
	ReportStarted  = "STARTED"
	ReportFinished = "FINISHED"
	ReportFailed   = "FAILED"
)

const (
	reportTarget = "reportTarget"
	reportBody   = "report"
	reportStatus = "reportStatus"
	reportRun    = "reportRun"
)

type ReportEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Schema    string `json:"schema,omitempty"`
	Owner     string `json:"owner"`
	MessageID string `json:"messageId,omitempty"`
}

type ReportItem struct {
	Title     string   `json:"title"`
	Documents []string `json:"documents"`
}

type ReportData struct {
	Target string        `json:"target"`
	Trail  []ReportEntry `json:"trail"`
	Items  []ReportItem  `json:"items"`
}

// Report builds the provenance trail of a document in the background.
type Report struct{}

func (Report) Type() string { return TypeReport }

func (Report) About() About {
	return About{
		Label:        "Report",
		Post:         true,
		Get:          true,
		Children:     ChildrenSpecial,
		Control:      ControlUI,
		Input:        []core.EventType{core.EventRun, core.EventRefresh},
		DefaultEvent: true,
	}
}

func (Report) ValidateOptions(scope ValidationScope) {
	for _, c := range scope.Config().Children {
		if c.BlockType != TypeReportItem {
			scope.Error("children", fmt.Sprintf("Block %s is not allowed in a report", c.BlockType))
		}
	}
}

func (Report) GetData(ctx context.Context, bc *Context) (map[string]any, error) {
	var target, status string
	var report *ReportData
	if _, err := bc.State.Get(ctx, TierLong, reportTarget, &target); err != nil {
		return nil, err
	}
	if _, err := bc.State.Get(ctx, TierLong, reportBody, &report); err != nil {
		return nil, err
	}
	if _, err := bc.State.Get(ctx, TierLong, reportStatus, &status); err != nil {
		return nil, err
	}
	return map[string]any{
		"target": target,
		"report": report,
		"status": status,
	}, nil
}

func (r Report) SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error) {
	value, _ := payload["filterValue"].(string)
	var status any
	if value != "" {
		status = ReportStarted
	}
	if err := bc.State.Set(ctx, TierLong, reportTarget, value); err != nil {
		return nil, err
	}
	if err := bc.State.Set(ctx, TierLong, reportBody, nil); err != nil {
		return nil, err
	}
	if err := bc.State.Set(ctx, TierLong, reportStatus, status); err != nil {
		return nil, err
	}
	run := uuid.New().String()
	if err := bc.State.Set(ctx, TierLong, reportRun, run); err != nil {
		return nil, err
	}
	if value != "" {
		bc.Background("report", func(ctx context.Context, bg *Context) {
			r.build(ctx, bg, value, run)
		})
	}
	return &Result{Data: map[string]any{"status": status}}, nil
}

// build writes the report of run. A later SetData starts a new run and
// the outdated result is dropped.
func (r Report) build(ctx context.Context, bc *Context, target, run string) {
	report, err := r.trail(ctx, bc, target)
	if !r.current(ctx, bc, run) {
		bc.Logger.Debug("report superseded", "block_id", bc.Node.ID, "target", target)
		return
	}
	status := ReportFinished
	if err == nil {
		err = bc.State.Set(ctx, TierLong, reportBody, report)
	}
	if err != nil {
		bc.Logger.Warn("report failed", "block_id", bc.Node.ID, "target", target, "error", err)
		status = ReportFailed
	}
	if err := bc.State.Set(ctx, TierLong, reportStatus, status); err != nil {
		bc.Logger.Error("report status write failed", "block_id", bc.Node.ID, "error", err)
	}
	if bc.Notify != nil {
		bc.Notify(map[string]any{"status": status})
	}
}

func (Report) current(ctx context.Context, bc *Context, run string) bool {
	var latest string
	if _, err := bc.State.Get(ctx, TierLong, reportRun, &latest); err != nil {
		bc.Logger.Warn("report run not readable", "block_id", bc.Node.ID, "error", err)
		return false
	}
	return latest == run
}

func (Report) trail(ctx context.Context, bc *Context, target string) (*ReportData, error) {
	all, err := bc.Documents.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*core.Document, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}
	if _, ok := byID[target]; !ok {
		return nil, fmt.Errorf("%w: document %s", core.ErrInvalidPayload, target)
	}

	// Walk relationships towards the origin, then any document derived from
	// something already on the trail.
	seen := map[string]bool{}
	var trail []*core.Document
	queue := []string{target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		d, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		trail = append(trail, d)
		queue = append(queue, d.Relationships...)
	}
	for changed := true; changed; {
		changed = false
		for _, d := range all {
			if seen[d.ID] {
				continue
			}
			for _, rel := range d.Relationships {
				if seen[rel] {
					seen[d.ID] = true
					trail = append(trail, d)
					changed = true
					break
				}
			}
		}
	}

	out := &ReportData{Target: target}
	for _, d := range trail {
		out.Trail = append(out.Trail, ReportEntry{
			ID: d.ID, Type: d.Type, Schema: d.Schema, Owner: d.Owner, MessageID: d.MessageID,
		})
	}
	for _, item := range bc.Graph.Children(bc.Node.ID) {
		ri := ReportItem{Title: item.Config.String("title")}
		for _, d := range trail {
			if matchDocument(item.Config, d) {
				ri.Documents = append(ri.Documents, d.ID)
			}
		}
		out.Items = append(out.Items, ri)
	}
	return out, nil
}

// ReportItemBlock selects trail documents for one report section.
type ReportItemBlock struct{}

func (ReportItemBlock) Type() string { return TypeReportItem }

func (ReportItemBlock) About() About {
	return About{
		Label:    "Report Item",
		Children: ChildrenNone,
		Control:  ControlSpecial,
	}
}

func (ReportItemBlock) ValidateOptions(scope ValidationScope) {
	if scope.Config().String("title") == "" {
		scope.Warning("", "title", "Report item has no title")
	}
	if iri := scope.Config().String("schema"); iri != "" {
		scope.RequireSchema("schema", iri)
	}
}
