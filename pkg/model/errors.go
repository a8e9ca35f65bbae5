package model

import "fmt"

func errRequired(field string) error {
	return fmt.Errorf("model: %s is required", field)
}

func errUnknownLanguage(code string) error {
	return fmt.Errorf("model: language code %q does not resolve through the language table", code)
}

func errInvalidVoicemailAction(a VoicemailAction) error {
	return fmt.Errorf("model: invalid voicemail action %q", a)
}
