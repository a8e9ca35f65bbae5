package signaling

import (
	"encoding/json"
	"net/http"

	"github.com/voicecore/callcore/internal/phonenumber"
)

// normalizeAndValidate resolves phone to E.164 via internal/phonenumber and
// rejects anything that doesn't land on a plausible E.164 shape (a '+'
// followed by 8-15 digits, per the ITU E.164 length bound). Returns "" on
// rejection.
func normalizeAndValidate(phone string) string {
	e164 := phonenumber.ToE164(phone)
	digits := e164[1:] // strip the leading '+'
	if len(digits) < 8 || len(digits) > 15 {
		return ""
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return e164
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errClass, message string) {
	writeJSON(w, status, errorResponse{Error: errClass, Message: message})
}
