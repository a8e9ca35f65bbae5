package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voicecore/callcore/internal/resilience"
)

func (d *Driver) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hosted: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("hosted: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &resilience.ProviderError{Class: resilience.ErrClassNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &resilience.ProviderError{Class: resilience.ErrClassNetworkError, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("hosted: decode response: %w", err)
		}
	}
	return nil
}

func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &resilience.ProviderError{Class: resilience.ErrClassAuthFailed, Message: body}
	case http.StatusTooManyRequests:
		return &resilience.ProviderError{Class: resilience.ErrClassRateLimited, Message: body}
	case http.StatusPaymentRequired:
		return &resilience.ProviderError{Class: resilience.ErrClassBillingBlocked, Message: body}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &resilience.ProviderError{Class: resilience.ErrClassTimeout, Message: body}
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return &resilience.ProviderError{Class: resilience.ErrClassInvalidTo, Message: body}
	default:
		return &resilience.ProviderError{Class: resilience.ErrClassUnknownProviderErr, Message: fmt.Sprintf("status %d: %s", status, body)}
	}
}
