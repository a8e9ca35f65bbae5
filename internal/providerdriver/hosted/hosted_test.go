package hosted_test

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicecore/callcore/internal/providerdriver/hosted"
	"github.com/voicecore/callcore/internal/resilience"
)

func newTestDriver(t *testing.T, handler http.HandlerFunc) *hosted.Driver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := hosted.New(map[string]string{
		"accountId": "ACtest",
		"authToken": "secret",
		"baseUrl":   srv.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := hosted.New(map[string]string{"accountId": "AC1"}); err == nil {
		t.Error("expected error for missing authToken")
	}
}

func TestInitiateCall(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing/incorrect auth header: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]string{"call_sid": "C1", "status": "initiated"})
	})

	res, err := d.InitiateCall(context.Background(), "+15551230001", "+15550000001", "https://cb/media", "https://cb/status")
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if res.ProviderCallID != "C1" || res.InitialStatus != "initiated" {
		t.Errorf("got %+v", res)
	}
}

func TestInitiateCallClassifiesAuthFailure(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad token"))
	})

	_, err := d.InitiateCall(context.Background(), "to", "from", "", "")
	var provErr *resilience.ProviderError
	if !errorsAs(err, &provErr) {
		t.Fatalf("expected *resilience.ProviderError, got %v (%T)", err, err)
	}
	if provErr.Class != resilience.ErrClassAuthFailed {
		t.Errorf("class = %v, want AuthFailed", provErr.Class)
	}
}

func TestValidateCredentials(t *testing.T) {
	d := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "active"})
	})
	ok, reason := d.ValidateCredentials(context.Background())
	if !ok {
		t.Errorf("expected ok=true, got reason %q", reason)
	}
}

func TestAnswerScriptIsConnectStreamXML(t *testing.T) {
	d, _ := hosted.New(map[string]string{"accountId": "AC1", "authToken": "t"})
	script, err := d.AnswerScript("call-123", "wss://media.example.com")
	if err != nil {
		t.Fatalf("AnswerScript: %v", err)
	}

	var doc struct {
		XMLName xml.Name `xml:"Response"`
		Connect struct {
			Stream struct {
				URL        string `xml:"url,attr"`
				Parameters []struct {
					Name  string `xml:"name,attr"`
					Value string `xml:"value,attr"`
				} `xml:"Parameter"`
			} `xml:"Stream"`
		} `xml:"Connect"`
	}
	if err := xml.Unmarshal(script, &doc); err != nil {
		t.Fatalf("unmarshal script %q: %v", script, err)
	}
	if doc.Connect.Stream.URL != "wss://media.example.com/media-stream/call-123" {
		t.Errorf("stream url = %q", doc.Connect.Stream.URL)
	}
	if len(doc.Connect.Stream.Parameters) != 1 ||
		doc.Connect.Stream.Parameters[0].Name != "callSid" ||
		doc.Connect.Stream.Parameters[0].Value != "call-123" {
		t.Errorf("parameters = %+v, want one callSid=call-123", doc.Connect.Stream.Parameters)
	}
	if script[0] != '<' {
		t.Errorf("answer script must be an XML document, got %q", script[0])
	}
}

// errorsAs avoids importing "errors" purely for As in this small file.
func errorsAs(err error, target **resilience.ProviderError) bool {
	pe, ok := err.(*resilience.ProviderError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
