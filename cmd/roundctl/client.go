package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gatewayconfig "roundledger/gateway/config"
)

type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// client talks to the roundd HTTP API.
type client struct {
	base   *url.URL
	token  string
	caller string
	http   *http.Client
}

func newClient(opts globalOptions) (*client, error) {
	raw := strings.TrimSpace(opts.url)
	if raw == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	secured, _, err := gatewayconfig.EnforceSecureScheme(opts.env, parsed, false)
	if err != nil {
		return nil, err
	}
	return &client{
		base:   secured,
		token:  strings.TrimSpace(opts.token),
		caller: strings.TrimSpace(opts.caller),
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *client) do(method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	target := c.base.JoinPath(path)
	req, err := http.NewRequest(method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.caller != "" {
		req.Header.Set("X-Caller", c.caller)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return json.RawMessage(data), nil
}

func decodeAPIError(status int, data []byte) error {
	var envelope struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Kind != "" {
		return &apiError{Status: status, Kind: envelope.Error.Kind, Message: envelope.Error.Message}
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		message = http.StatusText(status)
	}
	return &apiError{Status: status, Message: message}
}
