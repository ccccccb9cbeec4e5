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
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderUserDID  = "X-Policy-User-DID"
	HeaderUserRole = "X-Policy-User-Role"
)

// UserFromRequest identifies the user of an update subscription. Anonymous
// callers get a stable key derived from their address.
func UserFromRequest(r *http.Request) User {
	u := User{
		DID:  r.Header.Get(HeaderUserDID),
		Role: r.Header.Get(HeaderUserRole),
	}
	if u.DID == "" {
		u.DID = r.URL.Query().Get("did")
	}
	if u.DID != "" {
		return u
	}

	remoteAddr := r.RemoteAddr
	if remoteAddr == "" {
		u.DID = "anonymous:" + uuid.New().String()
		return u
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if strings.Contains(host, ":") {
		if ip := net.ParseIP(host); ip != nil {
			host = ip.String()
		}
	}

	hash := sha256.Sum256([]byte(host))
	u.DID = "anonymous:" + hex.EncodeToString(hash[:])[:12]
	return u
}
