package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OTPClient talks to the auth provider that issues email verification
// tickets and confirms one-time codes.
type OTPClient struct {
	httpClient    *http.Client
	baseURL       string
	bearerToken   string
	environmentID string
}

func NewOTPClient(baseURL, bearerToken, environmentID string, timeout time.Duration) *OTPClient {
	return &OTPClient{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		bearerToken:   bearerToken,
		environmentID: environmentID,
	}
}

// CreateEmailVerification requests an OTP email and returns the ticket id
// the code must later be confirmed against.
func (c *OTPClient) CreateEmailVerification(ctx context.Context, email string) (string, error) {
	var resp struct {
		VerificationUUID string `json:"verificationUUID"`
	}

	path := fmt.Sprintf("/environments/%s/emailVerifications/create", c.environmentID)
	if err := c.post(ctx, path, map[string]string{"email": email}, &resp); err != nil {
		return "", err
	}
	if resp.VerificationUUID == "" {
		return "", fmt.Errorf("auth provider returned no verification id")
	}
	return resp.VerificationUUID, nil
}

// VerifyOTP confirms the 6-digit code for a pending ticket.
func (c *OTPClient) VerifyOTP(ctx context.Context, verificationUUID, code string) error {
	path := fmt.Sprintf("/environments/%s/emailVerifications/signin", c.environmentID)
	body := map[string]string{
		"verificationUUID":  verificationUUID,
		"verificationToken": code,
	}
	return c.post(ctx, path, body, nil)
}

func (c *OTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth provider unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("auth provider rejected request: status %d: %s", resp.StatusCode, string(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
