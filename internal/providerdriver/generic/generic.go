// Package generic implements providerdriver.Driver for carriers reachable
// through a single signed-HTTP endpoint configured entirely by URL, method,
// and API key/secret — the catch-all driver for carriers with no dedicated
// integration.
package generic

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/internal/resilience"
)

// Driver implements providerdriver.Driver against an arbitrary signed-HTTP
// carrier endpoint.
type Driver struct {
	endpointURL  string
	httpMethod   string
	apiKey       string
	secretKey    string
	headers      map[string]string
	customScript string

	client *http.Client
}

// New builds a Driver from decrypted credentials: {endpointUrl, httpMethod,
// apiKey, secretKey, headers?}. customScript is the provider's
// CustomScript configuration field: it is passed through to the carrier on
// dial and, when set, serves as the AnswerScript {{callSid}} template in
// place of the standard actions document.
func New(creds map[string]string, customScript string) (*Driver, error) {
	endpointURL := creds["endpointUrl"]
	apiKey := creds["apiKey"]
	secretKey := creds["secretKey"]
	if endpointURL == "" || apiKey == "" || secretKey == "" {
		return nil, errors.New("generic: credentials must include endpointUrl, apiKey, and secretKey")
	}
	method := creds["httpMethod"]
	if method == "" {
		method = http.MethodPost
	}

	var headers map[string]string
	if raw := creds["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return nil, fmt.Errorf("generic: decode headers credential field: %w", err)
		}
	}

	return &Driver{
		endpointURL:  endpointURL,
		httpMethod:   method,
		apiKey:       apiKey,
		secretKey:    secretKey,
		headers:      headers,
		customScript: customScript,
		client:       &http.Client{Timeout: 15 * time.Second},
	}, nil
}

var _ providerdriver.Driver = (*Driver)(nil)

func (d *Driver) InitiateCall(ctx context.Context, to, from, mediaCallbackURL, statusCallbackURL string) (providerdriver.InitiateResult, error) {
	payload := map[string]any{
		"to":              to,
		"from":            from,
		"callback_url":    mediaCallbackURL,
		"status_callback": statusCallbackURL,
	}
	if d.customScript != "" {
		payload["custom_script"] = d.customScript
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := d.doSigned(ctx, d.httpMethod, d.endpointURL, payload, &resp); err != nil {
		return providerdriver.InitiateResult{}, err
	}
	return providerdriver.InitiateResult{
		ProviderCallID: resp.ID,
		InitialStatus:  providerdriver.CallStatus(resp.Status),
	}, nil
}

func (d *Driver) GetStatus(ctx context.Context, providerCallID string) (providerdriver.StatusResult, error) {
	var resp struct {
		Status      string `json:"status"`
		DurationSec int    `json:"duration_sec"`
	}
	if err := d.doSigned(ctx, http.MethodGet, d.endpointURL+"/"+providerCallID, nil, &resp); err != nil {
		return providerdriver.StatusResult{}, err
	}
	return providerdriver.StatusResult{
		Status:      providerdriver.CallStatus(resp.Status),
		DurationSec: resp.DurationSec,
	}, nil
}

func (d *Driver) EndCall(ctx context.Context, providerCallID string) (bool, error) {
	var resp struct {
		Ended bool `json:"ended"`
	}
	if err := d.doSigned(ctx, http.MethodPost, d.endpointURL+"/"+providerCallID+"/end", nil, &resp); err != nil {
		return false, err
	}
	return resp.Ended, nil
}

// answerAction instructs the carrier to open a media WebSocket and forward
// the callSid parameter.
type answerAction struct {
	Type       string            `json:"type"`
	URL        string            `json:"url"`
	Parameters map[string]string `json:"parameters"`
}

type answerScript struct {
	Actions []answerAction `json:"actions"`
}

// AnswerScript returns the operator's customScript template with
// {{callSid}} substituted when one is configured, otherwise the standard
// connect_websocket actions document.
func (d *Driver) AnswerScript(callID, publicWsBase string) ([]byte, error) {
	if d.customScript != "" {
		return []byte(strings.ReplaceAll(d.customScript, "{{callSid}}", callID)), nil
	}
	return json.Marshal(answerScript{Actions: []answerAction{{
		Type:       "connect_websocket",
		URL:        publicWsBase + "/media-stream/" + callID,
		Parameters: map[string]string{"callSid": callID},
	}}})
}

func (d *Driver) ValidateCredentials(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpointURL, nil)
	if err != nil {
		return false, err.Error()
	}
	d.sign(req, nil)
	resp, err := d.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Sprintf("validation GET returned status %d", resp.StatusCode)
	}
	return true, ""
}

func (d *Driver) doSigned(ctx context.Context, method, url string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("generic: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("generic: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	d.sign(req, encoded)

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
			return fmt.Errorf("generic: decode response: %w", err)
		}
	}
	return nil
}

// sign attaches the carrier's API key and an HMAC-SHA256 signature of the
// request body plus timestamp, guarding against replay, plus any
// operator-configured static headers.
func (d *Driver) sign(req *http.Request, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(d.secretKey))
	mac.Write([]byte(ts))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-Api-Key", d.apiKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
}

func classifyStatus(status int, body string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &resilience.ProviderError{Class: resilience.ErrClassAuthFailed, Message: body}
	case http.StatusTooManyRequests:
		return &resilience.ProviderError{Class: resilience.ErrClassRateLimited, Message: body}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &resilience.ProviderError{Class: resilience.ErrClassTimeout, Message: body}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &resilience.ProviderError{Class: resilience.ErrClassInvalidTo, Message: body}
	default:
		return &resilience.ProviderError{Class: resilience.ErrClassUnknownProviderErr, Message: fmt.Sprintf("status %d: %s", status, body)}
	}
}
