// Package checker is the HTTP client side of the policy-reasoner
// consultation every planning/execution/transfer decision routes
// through. Every request carries a short-lived, self-issued JWT; every
// failure mode (timeout, non-2xx, bad body) is treated as Deny, never
// as an implicit Allow.
package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brane-project/brane/pkg/ir"
)

// ErrDenied is returned by Must when the checker returns a
// Deny verdict, wrapping the reasons it gave.
var ErrDenied = errors.New("checker denied request")

// tokenTTL is fixed at 60s: these tokens authorize one
// request, not a session.
const tokenTTL = 60 * time.Second

// Claims is the self-issued service JWT's claim set.
type Claims struct {
	jwt.RegisteredClaims
	EndUser string `json:"end_user"`
}

// Client talks to one domain's local checker over HTTP.
type Client struct {
	baseURL    string
	domain     string
	signingKey []byte
	httpClient *http.Client
}

// New creates a Client for the checker reachable at baseURL, identifying
// itself as domain in every JWT it mints (the "iss" claim).
func New(baseURL, domain string, signingKey []byte, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		domain:     domain,
		signingKey: signingKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verdict is the checker's Allow/Deny decision.
type Verdict struct {
	Allowed bool
	Details map[string]string
	Reasons []string
}

// WorkflowRequest asks whether a workflow as a whole may be planned and
// run under the given end user.
type WorkflowRequest struct {
	Workflow json.RawMessage `json:"workflow"`
	EndUser  string          `json:"end_user"`
	UseCase  string          `json:"use_case"`
}

// TaskRequest asks whether a single task invocation at a program counter
// may execute on this domain.
type TaskRequest struct {
	PC           ir.ProgramCounter `json:"pc"`
	TaskName     string            `json:"task_name"`
	Domain       string            `json:"domain"`
	Capabilities []string          `json:"capabilities"`
	Arguments    map[string]string `json:"arguments"`
	EndUser      string            `json:"end_user"`
}

// TransferRequest asks whether a dataset/result may be transferred to a
// requesting domain.
type TransferRequest struct {
	Name      ir.DataName `json:"name"`
	ToDomain  string      `json:"to_domain"`
	Principal string      `json:"principal"`
	EndUser   string      `json:"end_user"`
}

type verdictWire struct {
	Allowed bool              `json:"allowed"`
	Details map[string]string `json:"details,omitempty"`
	Reasons []string          `json:"reasons,omitempty"`
}

func (c *Client) signToken(endUser string) (string, error) {
	if endUser == "" {
		endUser = "UNKNOWN"
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.domain,
			Subject:   endUser,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		EndUser: endUser,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.signingKey)
}

func (c *Client) post(ctx context.Context, path, endUser string, body any) (Verdict, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Verdict{}, fmt.Errorf("checker: marshal request: %w", err)
	}
	token, err := c.signToken(endUser)
	if err != nil {
		return Verdict{}, fmt.Errorf("checker: sign token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("checker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Fail closed: a network-level failure is treated as Deny, never
		// as an implicit Allow.
		return Verdict{Allowed: false, Reasons: []string{fmt.Sprintf("checker unreachable: %v", err)}}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{Allowed: false, Reasons: []string{fmt.Sprintf("checker response unreadable: %v", err)}}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{Allowed: false, Reasons: []string{fmt.Sprintf("checker returned status %d", resp.StatusCode)}}, nil
	}

	var wire verdictWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Verdict{Allowed: false, Reasons: []string{fmt.Sprintf("checker response malformed: %v", err)}}, nil
	}
	return Verdict{Allowed: wire.Allowed, Details: wire.Details, Reasons: wire.Reasons}, nil
}

// CheckWorkflow validates a workflow as a whole before planning begins.
func (c *Client) CheckWorkflow(ctx context.Context, req WorkflowRequest) (Verdict, error) {
	return c.post(ctx, "/check/workflow", req.EndUser, req)
}

// CheckTask validates one task's execution at its planned domain.
func (c *Client) CheckTask(ctx context.Context, req TaskRequest) (Verdict, error) {
	return c.post(ctx, "/check/task", req.EndUser, req)
}

// CheckTransfer validates a data transfer to a requesting domain.
func (c *Client) CheckTransfer(ctx context.Context, req TransferRequest) (Verdict, error) {
	return c.post(ctx, "/check/transfer", req.EndUser, req)
}

// Must returns ErrDenied if v is not an Allow, otherwise nil.
func Must(v Verdict, err error) error {
	if err != nil {
		return err
	}
	if !v.Allowed {
		return fmt.Errorf("%w: %v", ErrDenied, v.Reasons)
	}
	return nil
}
