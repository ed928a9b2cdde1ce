package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// IdentityProviderClient talks to the upstream identity provider that
// owns credential storage. This subsystem never sees password hashes;
// it only asks yes-or-no questions and forwards password updates.
type IdentityProviderClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewIdentityProviderClient creates a client for the identity provider API
func NewIdentityProviderClient(baseURL string, timeout time.Duration, logger *slog.Logger) *IdentityProviderClient {
	return &IdentityProviderClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type credentialCheckRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialCheckResponse struct {
	Valid bool `json:"valid"`
}

type passwordUpdateRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

// VerifyCredentials asks the identity provider whether the credentials
// match. A transport failure is an error, not a rejection; the caller
// decides what to do with it.
func (c *IdentityProviderClient) VerifyCredentials(ctx context.Context, email, password string) (bool, error) {
	body, err := json.Marshal(credentialCheckRequest{Email: email, Password: password})
	if err != nil {
		return false, fmt.Errorf("encoding credential check: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/credentials/verify", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building credential check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var result credentialCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding credential check response: %w", err)
	}

	return result.Valid, nil
}

// UpdatePassword forwards a password change to the identity provider
func (c *IdentityProviderClient) UpdatePassword(ctx context.Context, email, newPassword string) error {
	body, err := json.Marshal(passwordUpdateRequest{Email: email, NewPassword: newPassword})
	if err != nil {
		return fmt.Errorf("encoding password update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/credentials", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building password update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	return nil
}
