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
	"sort"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

const (
	TypeDocumentsSource = "interfaceDocumentsSourceBlock"
	TypeSourceAddon     = "documentsSourceAddon"
	TypeFiltersAddon    = "filtersAddon"
	TypePaginationAddon = "paginationAddon"
)

const (
	filterValue   = "filterValue"
	paginationKey = "pagination"
)

type Pagination struct {
	Page         int `json:"page"`
	ItemsPerPage int `json:"itemsPerPage"`
	Size         int `json:"size"`
}

// matchDocument applies the static filters of a source addon or report item.
func matchDocument(cfg *core.BlockConfig, doc *core.Document) bool {
	if t := cfg.String("dataType"); t != "" && t != doc.Type {
		return false
	}
	if s := cfg.String("schema"); s != "" && s != doc.Schema {
		return false
	}
	if s := cfg.String("status"); s != "" && s != doc.Status {
		return false
	}
	for _, f := range cfg.Maps("filters") {
		field, _ := f["field"].(string)
		want := fmt.Sprint(f["value"])
		got := fmt.Sprint(documentField(doc, field))
		switch f["type"] {
		case "not_equal":
			if got == want {
				return false
			}
		case "in":
			probe := &core.BlockConfig{Options: map[string]any{"v": f["value"]}}
			ok := false
			for _, v := range probe.Strings("v") {
				if v == got {
					ok = true
				}
			}
			if !ok {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

func documentField(doc *core.Document, field string) any {
	switch field {
	case "owner":
		return doc.Owner
	case "status":
		return doc.Status
	case "type":
		return doc.Type
	case "schema":
		return doc.Schema
	case "group":
		return doc.Group
	}
	return doc.Data[field]
}

// DocumentsSource lists documents selected by its source addons, narrowed
// by per-user filter and pagination addons.
type DocumentsSource struct{}

func (DocumentsSource) Type() string { return TypeDocumentsSource }

func (DocumentsSource) About() About {
	return About{
		Label:        "Source",
		Get:          true,
		Children:     ChildrenSpecial,
		Control:      ControlUI,
		Input:        []core.EventType{core.EventRun, core.EventRefresh},
		DefaultEvent: true,
	}
}

func (DocumentsSource) ValidateOptions(scope ValidationScope) {
	sources := 0
	for _, c := range scope.Config().Children {
		switch c.BlockType {
		case TypeSourceAddon:
			sources++
		case TypeFiltersAddon, TypePaginationAddon:
		default:
			scope.Error("children", fmt.Sprintf("Block %s is not allowed in a documents source", c.BlockType))
		}
	}
	if sources == 0 {
		scope.Error("children", "Documents source has no source addon")
	}
}

func (DocumentsSource) GetData(ctx context.Context, bc *Context) (map[string]any, error) {
	all, err := bc.Documents.List(ctx)
	if err != nil {
		return nil, err
	}
	selected := make(map[string]*core.Document)
	pg := Pagination{ItemsPerPage: 0}
	var userFilters []func(*core.Document) bool

	for _, child := range bc.Graph.Children(bc.Node.ID) {
		cfg := child.Config
		switch child.Type {
		case TypeSourceAddon:
			for _, d := range all {
				if cfg.Bool("onlyOwnDocuments") && d.Owner != bc.User.DID {
					continue
				}
				if cfg.Bool("onlyAssignDocuments") && d.Group != bc.User.Group {
					continue
				}
				if matchDocument(cfg, d) {
					selected[d.ID] = d
				}
			}
		case TypeFiltersAddon:
			var value string
			if _, err := bc.StateOf(child.ID).Get(ctx, TierShort, filterValue, &value); err != nil {
				return nil, err
			}
			if value == "" {
				continue
			}
			field := cfg.String("field")
			userFilters = append(userFilters, func(d *core.Document) bool {
				return fmt.Sprint(documentField(d, field)) == value
			})
		case TypePaginationAddon:
			pg.ItemsPerPage = cfg.Int("itemsPerPage", 10)
			var saved Pagination
			found, err := bc.StateOf(child.ID).Get(ctx, TierShort, paginationKey, &saved)
			if err != nil {
				return nil, err
			}
			if found {
				pg.Page = saved.Page
				if saved.ItemsPerPage > 0 {
					pg.ItemsPerPage = saved.ItemsPerPage
				}
			}
		}
	}

	docs := make([]*core.Document, 0, len(selected))
	for _, d := range selected {
		keep := true
		for _, f := range userFilters {
			if !f(d) {
				keep = false
				break
			}
		}
		if keep {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	pg.Size = len(docs)
	if pg.ItemsPerPage > 0 {
		start := pg.Page * pg.ItemsPerPage
		if start > len(docs) {
			start = len(docs)
		}
		end := start + pg.ItemsPerPage
		if end > len(docs) {
			end = len(docs)
		}
		docs = docs[start:end]
	}

	return map[string]any{
		"id":         bc.Node.ID,
		"data":       docs,
		"fields":     bc.Node.Config.Options["uiMetaData"],
		"pagination": pg,
	}, nil
}

func (DocumentsSource) RunAction(_ context.Context, _ *Context, _ core.Event) (*Result, error) {
	return &Result{Update: true}, nil
}

type SourceAddon struct{}

func (SourceAddon) Type() string { return TypeSourceAddon }

func (SourceAddon) About() About {
	return About{Label: "Source", Children: ChildrenNone, Control: ControlServer}
}

func (SourceAddon) ValidateOptions(scope ValidationScope) {
	cfg := scope.Config()
	if iri := cfg.String("schema"); iri != "" {
		scope.RequireSchema("schema", iri)
	}
	for _, f := range cfg.Maps("filters") {
		switch f["type"] {
		case nil, "equal", "not_equal", "in":
		default:
			scope.Error("filters", fmt.Sprintf("Unknown filter type %v", f["type"]))
		}
		if field, _ := f["field"].(string); field == "" {
			scope.Error("filters", "Filter field is not set")
		}
	}
}

type FiltersAddon struct{}

func (FiltersAddon) Type() string { return TypeFiltersAddon }

func (FiltersAddon) About() About {
	return About{Label: "Filters", Post: true, Get: true, Children: ChildrenNone, Control: ControlSpecial}
}

func (FiltersAddon) ValidateOptions(scope ValidationScope) {
	if scope.Config().String("field") == "" {
		scope.Error("field", `Option "field" is not set`)
	}
}

func (FiltersAddon) GetData(ctx context.Context, bc *Context) (map[string]any, error) {
	var value string
	if _, err := bc.State.Get(ctx, TierShort, filterValue, &value); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          bc.Node.ID,
		"field":       bc.Node.Config.String("field"),
		"filterValue": value,
		"options":     bc.Node.Config.Options["options"],
	}, nil
}

func (FiltersAddon) SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error) {
	value := ""
	if v, ok := payload["filterValue"]; ok && v != nil {
		value = fmt.Sprint(v)
	}
	if err := bc.State.Set(ctx, TierShort, filterValue, value); err != nil {
		return nil, err
	}
	return &Result{Data: map[string]any{"filterValue": value}, Update: true}, nil
}

type PaginationAddon struct{}

func (PaginationAddon) Type() string { return TypePaginationAddon }

func (PaginationAddon) About() About {
	return About{Label: "Pagination", Post: true, Get: true, Children: ChildrenNone, Control: ControlSpecial}
}

func (PaginationAddon) GetData(ctx context.Context, bc *Context) (map[string]any, error) {
	pg := Pagination{ItemsPerPage: bc.Node.Config.Int("itemsPerPage", 10)}
	if _, err := bc.State.Get(ctx, TierShort, paginationKey, &pg); err != nil {
		return nil, err
	}
	return map[string]any{"id": bc.Node.ID, "page": pg.Page, "itemsPerPage": pg.ItemsPerPage}, nil
}

func (PaginationAddon) SetData(ctx context.Context, bc *Context, payload map[string]any) (*Result, error) {
	probe := &core.BlockConfig{Options: payload}
	pg := Pagination{
		Page:         probe.Int("page", 0),
		ItemsPerPage: probe.Int("itemsPerPage", bc.Node.Config.Int("itemsPerPage", 10)),
	}
	if pg.Page < 0 || pg.ItemsPerPage <= 0 {
		return nil, fmt.Errorf("%w: page=%d itemsPerPage=%d", core.ErrInvalidPayload, pg.Page, pg.ItemsPerPage)
	}
	if err := bc.State.Set(ctx, TierShort, paginationKey, pg); err != nil {
		return nil, err
	}
	return &Result{Data: map[string]any{"page": pg.Page, "itemsPerPage": pg.ItemsPerPage}, Update: true}, nil
}
