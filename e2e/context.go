package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext carries one scenario's state against a running server.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string

	client *http.Client

	tenantID string
	branchID string
	areaID   string
	actors   map[string]string

	lastStatus int
	lastBody   []byte

	observationID string
	saved         map[string]string
}

func NewTestContext(baseURL, signingKey string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: signingKey,
		Issuer:     "auditgov",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset gives the scenario a fresh tenant, so scenarios never share state.
func (tc *TestContext) Reset() {
	tc.tenantID = uuid.NewString()
	tc.branchID = uuid.NewString()
	tc.areaID = uuid.NewString()
	tc.actors = map[string]string{}
	tc.saved = map[string]string{}
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.observationID = ""
}

func (tc *TestContext) ActorID(role string) string {
	if actorID, ok := tc.actors[role]; ok {
		return actorID
	}
	actorID := uuid.NewString()
	tc.actors[role] = actorID
	return actorID
}

// tokenFor signs the same claims the identity layer would.
func (tc *TestContext) tokenFor(role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":       tc.ActorID(role),
		"tenant_id": tc.tenantID,
		"roles":     []string{role},
		"sid":       uuid.NewString(),
		"iss":       tc.Issuer,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"jti":       uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.SigningKey))
}

// Do sends a request as role. An empty role sends no Authorization header.
func (tc *TestContext) Do(ctx context.Context, role, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := tc.tokenFor(role)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) Scope() (tenant, branch, area string) {
	return tc.tenantID, tc.branchID, tc.areaID
}

func (tc *TestContext) ObservationID() string {
	return tc.observationID
}

func (tc *TestContext) SetObservationID(obsID string) {
	tc.observationID = obsID
}

func (tc *TestContext) Save(key, value string) {
	tc.saved[key] = value
}

func (tc *TestContext) Saved(key string) string {
	return tc.saved[key]
}
