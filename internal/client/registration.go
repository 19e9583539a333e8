// Registration handling for the node agent.
//
// This file implements the node registration flow. New nodes register with
// the controller using a one-time bootstrap token and receive a node token
// for future authentication.
//
// The registration flow:
// 1. Node sends POST /api/v1/nodes/register with { bootstrap_token, hostname }
// 2. Controller validates the token, marks it as used, creates the node record
// 3. Controller returns { node_name, node_token } plus NATS credentials
// 4. Node stores the credentials in the config file for future requests
//
// The node token is only returned once during registration. It must be
// persisted to the config file immediately after registration (see
// config.Save).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// registrationRequest is the JSON body sent to POST /api/v1/nodes/register.
type registrationRequest struct {
	BootstrapToken string `json:"bootstrap_token"`
	Hostname       string `json:"hostname"`
}

// registrationResponse is the JSON response from POST /api/v1/nodes/register.
type registrationResponse struct {
	NodeName  string                `json:"node_name"`
	NodeToken string                `json:"node_token"`
	NATS      *natsRegistrationInfo `json:"nats,omitempty"`
}

// natsRegistrationInfo contains NATS credentials from registration.
type natsRegistrationInfo struct {
	Servers  string `json:"servers"`
	NKeySeed string `json:"nkey_seed"`
}

// RegistrationResult contains all credentials received from registration.
type RegistrationResult struct {
	NodeName     string
	NodeToken    string
	NATSServers  string
	NATSNKeySeed string
}

// registrationError is the JSON error response from the controller.
type registrationError struct {
	Error string `json:"error"`
}

// ErrInvalidToken indicates the bootstrap token was invalid or already used.
var ErrInvalidToken = fmt.Errorf("invalid or already used bootstrap token")

// ErrBadRequest indicates a malformed registration request.
var ErrBadRequest = fmt.Errorf("bad registration request")

// Register registers a new node with the controller.
//
// It sends the bootstrap token and hostname and receives credentials upon
// successful registration. The credentials should be immediately saved to
// the config file using config.Save().
//
// Returns ErrInvalidToken (401), ErrBadRequest (400), or a network/server
// error.
func Register(ctx context.Context, controllerURL, bootstrapToken, hostname string, logger *slog.Logger) (*RegistrationResult, error) {
	// Dedicated HTTP client for registration; no auth yet.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 30 * time.Second

	httpClient := retryClient.StandardClient()

	reqBody := registrationRequest{
		BootstrapToken: bootstrapToken,
		Hostname:       hostname,
	}
	bodyData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registration request: %w", err)
	}

	url := controllerURL + "/api/v1/nodes/register"

	logger.Info("registering with controller",
		slog.String("url", url),
		slog.String("hostname", hostname),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyData))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var regResp registrationResponse
		if err := json.Unmarshal(respBody, &regResp); err != nil {
			return nil, fmt.Errorf("failed to parse registration response: %w", err)
		}

		result := &RegistrationResult{
			NodeName:  regResp.NodeName,
			NodeToken: regResp.NodeToken,
		}
		if regResp.NATS != nil {
			result.NATSServers = regResp.NATS.Servers
			result.NATSNKeySeed = regResp.NATS.NKeySeed
		}

		logger.Info("registration successful",
			slog.String("node", result.NodeName),
			slog.Bool("nats_enabled", result.NATSServers != ""),
		)

		return result, nil

	case http.StatusUnauthorized:
		return nil, ErrInvalidToken

	case http.StatusBadRequest:
		var errResp registrationError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrBadRequest, errResp.Error)
		}
		return nil, ErrBadRequest

	default:
		var errResp registrationError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}
}
