package generic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicecore/callcore/internal/providerdriver/generic"
)

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := generic.New(map[string]string{"endpointUrl": "http://x"}, ""); err == nil {
		t.Error("expected error for missing apiKey/secretKey")
	}
}

func TestInitiateCallSignsRequest(t *testing.T) {
	var gotKey, gotSig, gotTs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotSig = r.Header.Get("X-Signature")
		gotTs = r.Header.Get("X-Timestamp")
		json.NewEncoder(w).Encode(map[string]string{"id": "G1", "status": "initiated"})
	}))
	defer srv.Close()

	d, err := generic.New(map[string]string{
		"endpointUrl": srv.URL,
		"apiKey":      "key1",
		"secretKey":   "shh",
	}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := d.InitiateCall(context.Background(), "to", "from", "cb", "sb")
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if res.ProviderCallID != "G1" {
		t.Errorf("ProviderCallID = %q", res.ProviderCallID)
	}
	if gotKey != "key1" {
		t.Errorf("X-Api-Key = %q", gotKey)
	}
	if gotSig == "" || gotTs == "" {
		t.Error("expected non-empty signature and timestamp headers")
	}
}

func TestCustomScriptIncludedWhenSet(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]string{"id": "G1", "status": "initiated"})
	}))
	defer srv.Close()

	d, err := generic.New(map[string]string{
		"endpointUrl": srv.URL,
		"apiKey":      "key1",
		"secretKey":   "shh",
	}, "ring-twice")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.InitiateCall(context.Background(), "to", "from", "cb", "sb"); err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if body["custom_script"] != "ring-twice" {
		t.Errorf("custom_script = %v, want ring-twice", body["custom_script"])
	}
}

func TestAnswerScriptIsConnectWebsocketActions(t *testing.T) {
	d, err := generic.New(map[string]string{
		"endpointUrl": "http://carrier.example",
		"apiKey":      "k",
		"secretKey":   "s",
	}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	script, err := d.AnswerScript("call-9", "wss://media.example.com")
	if err != nil {
		t.Fatalf("AnswerScript: %v", err)
	}

	var decoded struct {
		Actions []struct {
			Type       string            `json:"type"`
			URL        string            `json:"url"`
			Parameters map[string]string `json:"parameters"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(script, &decoded); err != nil {
		t.Fatalf("unmarshal script: %v", err)
	}
	if len(decoded.Actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(decoded.Actions))
	}
	a := decoded.Actions[0]
	if a.Type != "connect_websocket" {
		t.Errorf("type = %q", a.Type)
	}
	if a.URL != "wss://media.example.com/media-stream/call-9" {
		t.Errorf("url = %q", a.URL)
	}
	if a.Parameters["callSid"] != "call-9" {
		t.Errorf("callSid = %q", a.Parameters["callSid"])
	}
}

func TestAnswerScriptUsesCustomScriptTemplate(t *testing.T) {
	d, err := generic.New(map[string]string{
		"endpointUrl": "http://carrier.example",
		"apiKey":      "k",
		"secretKey":   "s",
	}, `{"actions":[{"type":"play","text":"hi"},{"type":"bridge","sid":"{{callSid}}"}]}`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	script, err := d.AnswerScript("call-42", "wss://media.example.com")
	if err != nil {
		t.Fatalf("AnswerScript: %v", err)
	}
	want := `{"actions":[{"type":"play","text":"hi"},{"type":"bridge","sid":"call-42"}]}`
	if string(script) != want {
		t.Errorf("script = %s, want %s", script, want)
	}
}

func TestValidateCredentialsChecks2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, err := generic.New(map[string]string{
		"endpointUrl": srv.URL,
		"apiKey":      "k",
		"secretKey":   "s",
	}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, reason := d.ValidateCredentials(context.Background())
	if !ok {
		t.Errorf("expected ok, got reason %q", reason)
	}
}
