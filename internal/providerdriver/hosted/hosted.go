// Package hosted implements providerdriver.Driver for hosted telephony
// platforms authenticated by an account ID and auth token, with server-side
// answering-machine detection and a recording-status webhook.
package hosted

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voicecore/callcore/internal/providerdriver"
)

const defaultBaseURL = "https://api.hostedcarrier.example/v1"

// Driver implements providerdriver.Driver against a hosted carrier account.
type Driver struct {
	accountID string
	authToken string
	baseURL   string
	client    *http.Client
}

// New builds a Driver from decrypted credentials: {accountId, authToken}.
func New(creds map[string]string) (*Driver, error) {
	accountID := creds["accountId"]
	authToken := creds["authToken"]
	if accountID == "" || authToken == "" {
		return nil, errors.New("hosted: credentials must include accountId and authToken")
	}
	baseURL := creds["baseUrl"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Driver{
		accountID: accountID,
		authToken: authToken,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

var _ providerdriver.Driver = (*Driver)(nil)

func (d *Driver) InitiateCall(ctx context.Context, to, from, mediaCallbackURL, statusCallbackURL string) (providerdriver.InitiateResult, error) {
	body := map[string]any{
		"to":                  to,
		"from":                from,
		"media_callback_url":  mediaCallbackURL,
		"status_callback_url": statusCallbackURL,
		"machine_detection":   true,
	}
	var resp struct {
		CallSID string `json:"call_sid"`
		Status  string `json:"status"`
	}
	if err := d.doJSON(ctx, http.MethodPost, "/accounts/"+d.accountID+"/calls", body, &resp); err != nil {
		return providerdriver.InitiateResult{}, err
	}
	return providerdriver.InitiateResult{
		ProviderCallID: resp.CallSID,
		InitialStatus:  providerdriver.CallStatus(resp.Status),
	}, nil
}

func (d *Driver) GetStatus(ctx context.Context, providerCallID string) (providerdriver.StatusResult, error) {
	var resp struct {
		Status      string     `json:"status"`
		DurationSec int        `json:"duration_sec"`
		StartedAt   *time.Time `json:"started_at"`
		EndedAt     *time.Time `json:"ended_at"`
		AnsweredBy  string     `json:"answered_by"`
	}
	if err := d.doJSON(ctx, http.MethodGet, "/accounts/"+d.accountID+"/calls/"+providerCallID, nil, &resp); err != nil {
		return providerdriver.StatusResult{}, err
	}
	return providerdriver.StatusResult{
		Status:      providerdriver.CallStatus(resp.Status),
		DurationSec: resp.DurationSec,
		StartedAt:   resp.StartedAt,
		EndedAt:     resp.EndedAt,
		AnsweredBy:  resp.AnsweredBy,
	}, nil
}

func (d *Driver) EndCall(ctx context.Context, providerCallID string) (bool, error) {
	var resp struct {
		AlreadyEnded bool `json:"already_ended"`
	}
	if err := d.doJSON(ctx, http.MethodPost, "/accounts/"+d.accountID+"/calls/"+providerCallID+"/end", nil, &resp); err != nil {
		return false, err
	}
	return !resp.AlreadyEnded, nil
}

// answerResponse is the hosted carrier's XML answer document:
// <Response><Connect><Stream url="..."><Parameter name="callSid"
// value="..."/></Stream></Connect></Response>.
type answerResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect answerConnect `xml:"Connect"`
}

type answerConnect struct {
	Stream answerStream `xml:"Stream"`
}

type answerStream struct {
	URL        string            `xml:"url,attr"`
	Parameters []streamParameter `xml:"Parameter"`
}

type streamParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (d *Driver) AnswerScript(callID, publicWsBase string) ([]byte, error) {
	doc := answerResponse{
		Connect: answerConnect{
			Stream: answerStream{
				URL:        publicWsBase + "/media-stream/" + callID,
				Parameters: []streamParameter{{Name: "callSid", Value: callID}},
			},
		},
	}
	return xml.Marshal(doc)
}

func (d *Driver) ValidateCredentials(ctx context.Context) (bool, string) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := d.doJSON(ctx, http.MethodGet, "/accounts/"+d.accountID, nil, &resp); err != nil {
		return false, err.Error()
	}
	if resp.Status != "active" {
		return false, fmt.Sprintf("account status is %q, want active", resp.Status)
	}
	return true, ""
}
