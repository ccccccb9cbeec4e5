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

// Package credentials issues role and group credentials as signed JWTs.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

var ErrInvalidCredential = errors.New("invalid credential")

// JWTIssuer signs verifiable credentials with HS256. The credential body
// travels in the "vc" claim.
type JWTIssuer struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer returns an issuer for issuerDID. A zero ttl issues
// credentials without expiry.
func NewJWTIssuer(issuerDID string, secret []byte, ttl time.Duration) (*JWTIssuer, error) {
	if issuerDID == "" {
		return nil, fmt.Errorf("credential issuer DID is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("credential signing secret is required")
	}
	return &JWTIssuer{issuer: issuerDID, secret: secret, ttl: ttl, now: time.Now}, nil
}

func (i *JWTIssuer) Issue(_ context.Context, subjectDID string, claims map[string]any) (*core.Credential, error) {
	id := "urn:uuid:" + uuid.New().String()
	now := i.now().UTC().Truncate(time.Second)

	subject := map[string]any{"id": subjectDID}
	for k, v := range claims {
		subject[k] = v
	}
	mc := jwt.MapClaims{
		"iss": i.issuer,
		"sub": subjectDID,
		"jti": id,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"vc": map[string]any{
			"@context":          []string{"https://www.w3.org/2018/credentials/v1"},
			"type":              []string{"VerifiableCredential", "RoleCredential"},
			"credentialSubject": subject,
		},
	}
	if i.ttl > 0 {
		mc["exp"] = now.Add(i.ttl).Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	return &core.Credential{
		ID:       id,
		Issuer:   i.issuer,
		Subject:  subjectDID,
		Claims:   claims,
		IssuedAt: now,
		Proof:    signed,
	}, nil
}

// Verify checks the signature and issuer of a proof and returns the
// credential it carries.
func (i *JWTIssuer) Verify(proof string) (*core.Credential, error) {
	token, err := jwt.Parse(proof, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidCredential)
	}
	vc, _ := mc["vc"].(map[string]any)
	subject, _ := vc["credentialSubject"].(map[string]any)
	claims := make(map[string]any, len(subject))
	for k, v := range subject {
		if k != "id" {
			claims[k] = v
		}
	}

	cred := &core.Credential{
		ID:     getClaimString(mc, "jti"),
		Issuer: getClaimString(mc, "iss"),
		Claims: claims,
		Proof:  proof,
	}
	cred.Subject = getClaimString(mc, "sub")
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		cred.IssuedAt = iat.Time.UTC()
	}
	return cred, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
