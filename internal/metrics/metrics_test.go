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

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

func TestObserveValidation(t *testing.T) {
	m := New()
	m.ObserveValidation(&core.ValidationResult{
		IsValid:  false,
		Errors:   []core.Diagnostic{{Message: "a"}, {Message: "b"}},
		Warnings: []core.Diagnostic{{Message: "c"}},
	})
	m.ObserveValidation(&core.ValidationResult{IsValid: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diagnostics.WithLabelValues("warning")))
}

func TestDispatchAndLoaded(t *testing.T) {
	m := New()
	m.DispatchObserved("mintDocumentBlock", "ok", 20*time.Millisecond)
	m.DispatchObserved("mintDocumentBlock", "forbidden", time.Millisecond)
	m.PoliciesLoaded(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("mintDocumentBlock", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.loaded))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.PoliciesLoaded(1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "policies_loaded 1")
}
