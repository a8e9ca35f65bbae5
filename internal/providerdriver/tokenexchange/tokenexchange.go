// Package tokenexchange implements providerdriver.Driver for carriers that
// require a two-step authentication flow: exchange a long-lived access
// token/key pair for a short-lived API token, then dial using that token.
package tokenexchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/voicecore/callcore/internal/phonenumber"
	"github.com/voicecore/callcore/internal/providerdriver"
	"github.com/voicecore/callcore/internal/resilience"
)

// defaultTokenTTL is how long a fetched apiToken is trusted when the token
// response carries no parsable expiry_time. A 401 on dial also forces an
// immediate refresh regardless of age.
const defaultTokenTTL = 5 * time.Minute

// tokenExpirySlack refreshes the token slightly before the carrier's
// advertised expiry so a dial never races the cutoff.
const tokenExpirySlack = 30 * time.Second

// Driver implements providerdriver.Driver against a token-exchange carrier.
type Driver struct {
	tokenEndpoint string
	dialEndpoint  string
	accessToken   string
	accessKey     string
	appID         string
	username      string
	password      string

	client *http.Client

	mu             sync.Mutex
	cachedAPIToken string
	tokenExpiry    time.Time
}

// New builds a Driver from decrypted credentials: {tokenEndpoint,
// dialEndpoint, accessToken, accessKey, appId, username, password}.
func New(creds map[string]string) (*Driver, error) {
	required := []string{"tokenEndpoint", "dialEndpoint", "accessToken", "accessKey", "appId", "username", "password"}
	for _, k := range required {
		if creds[k] == "" {
			return nil, fmt.Errorf("tokenexchange: missing credential field %q", k)
		}
	}
	return &Driver{
		tokenEndpoint: creds["tokenEndpoint"],
		dialEndpoint:  creds["dialEndpoint"],
		accessToken:   creds["accessToken"],
		accessKey:     creds["accessKey"],
		appID:         creds["appId"],
		username:      creds["username"],
		password:      creds["password"],
		client:        &http.Client{Timeout: 15 * time.Second},
	}, nil
}

var _ providerdriver.Driver = (*Driver)(nil)

// apiToken returns the cached token while the carrier's advertised expiry
// (minus slack) has not passed, otherwise fetches a new one. Safe for
// concurrent use.
func (d *Driver) apiToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cachedAPIToken != "" && time.Now().Before(d.tokenExpiry.Add(-tokenExpirySlack)) {
		return d.cachedAPIToken, nil
	}

	token, expiry, err := d.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	d.cachedAPIToken = token
	d.tokenExpiry = expiry
	return token, nil
}

func (d *Driver) invalidateToken() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cachedAPIToken = ""
}

// fetchToken performs the carrier's token exchange: Basic auth plus an
// Accesstoken header, a JSON {"access_key":...} body, and a response
// carrying Apitoken and an ISO-8601 expiry_time.
func (d *Driver) fetchToken(ctx context.Context) (string, time.Time, error) {
	encoded, err := json.Marshal(map[string]string{"access_key": d.accessKey})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokenexchange: encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.tokenEndpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokenexchange: build token request: %w", err)
	}
	req.SetBasicAuth(d.username, d.password)
	req.Header.Set("Accesstoken", d.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", time.Time{}, &resilience.ProviderError{Class: resilience.ErrClassNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, &resilience.ProviderError{Class: resilience.ErrClassAuthFailed, Message: fmt.Sprintf("token fetch status %d", resp.StatusCode)}
	}

	var body struct {
		Status     string `json:"status"`
		APIToken   string `json:"Apitoken"`
		ExpiryTime string `json:"expiry_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("tokenexchange: decode token response: %w", err)
	}
	if body.APIToken == "" {
		return "", time.Time{}, errors.New("tokenexchange: token response missing Apitoken")
	}

	expiry := time.Now().Add(defaultTokenTTL)
	if body.ExpiryTime != "" {
		if t, err := time.Parse(time.RFC3339, body.ExpiryTime); err == nil {
			expiry = t
		}
	}
	return body.APIToken, expiry, nil
}

// customField mirrors the carrier's nested custom_field payload.
type customField struct {
	CallbackURL    string `json:"callback_url"`
	StatusCallback string `json:"status_callback"`
	RecordID       string `json:"record_id"`
}

func (d *Driver) InitiateCall(ctx context.Context, to, from, mediaCallbackURL, statusCallbackURL string) (providerdriver.InitiateResult, error) {
	token, err := d.apiToken(ctx)
	if err != nil {
		return providerdriver.InitiateResult{}, err
	}

	// appid is numeric on the wire when the configured value allows it.
	var appID any = d.appID
	if n, err := strconv.Atoi(d.appID); err == nil {
		appID = n
	}

	dialBody := map[string]any{
		"appid":     appID,
		"call_to":   phonenumber.NormalizeDigits(to),
		"caller_id": phonenumber.NormalizeDigits(from),
		"custom_field": customField{
			CallbackURL:    mediaCallbackURL,
			StatusCallback: statusCallbackURL,
			RecordID:       fmt.Sprintf("call_%d", time.Now().Unix()),
		},
	}
	encoded, err := json.Marshal(dialBody)
	if err != nil {
		return providerdriver.InitiateResult{}, fmt.Errorf("tokenexchange: encode dial request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.dialEndpoint, bytes.NewReader(encoded))
	if err != nil {
		return providerdriver.InitiateResult{}, fmt.Errorf("tokenexchange: build dial request: %w", err)
	}
	req.Header.Set("Apitoken", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return providerdriver.InitiateResult{}, &resilience.ProviderError{Class: resilience.ErrClassNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		d.invalidateToken()
		return providerdriver.InitiateResult{}, &resilience.ProviderError{Class: resilience.ErrClassAuthFailed, Message: "dial rejected cached token"}
	}
	if resp.StatusCode >= 400 {
		return providerdriver.InitiateResult{}, &resilience.ProviderError{Class: resilience.ErrClassUnknownProviderErr, Message: fmt.Sprintf("dial status %d", resp.StatusCode)}
	}

	// The carrier is inconsistent about the call-ID field name; accept all
	// three observed variants.
	var body struct {
		CallID  string `json:"call_id"`
		ID      string `json:"id"`
		CallidU string `json:"Callid"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return providerdriver.InitiateResult{}, fmt.Errorf("tokenexchange: decode dial response: %w", err)
	}
	return providerdriver.InitiateResult{
		ProviderCallID: firstNonEmpty(body.CallID, body.ID, body.CallidU),
		InitialStatus:  providerdriver.CallStatus(body.Status),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (d *Driver) GetStatus(ctx context.Context, providerCallID string) (providerdriver.StatusResult, error) {
	return providerdriver.StatusResult{}, errors.New("tokenexchange: carrier does not support status polling; rely on status callbacks")
}

func (d *Driver) EndCall(ctx context.Context, providerCallID string) (bool, error) {
	token, err := d.apiToken(ctx)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.dialEndpoint+"/"+providerCallID+"/hangup", nil)
	if err != nil {
		return false, fmt.Errorf("tokenexchange: build hangup request: %w", err)
	}
	req.Header.Set("Apitoken", token)
	resp, err := d.client.Do(req)
	if err != nil {
		return false, &resilience.ProviderError{Class: resilience.ErrClassNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
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

func (d *Driver) AnswerScript(callID, publicWsBase string) ([]byte, error) {
	return json.Marshal(answerScript{Actions: []answerAction{{
		Type:       "connect_websocket",
		URL:        publicWsBase + "/media-stream/" + callID,
		Parameters: map[string]string{"callSid": callID},
	}}})
}

func (d *Driver) ValidateCredentials(ctx context.Context) (bool, string) {
	if _, _, err := d.fetchToken(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}
