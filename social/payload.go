package social

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

// callbackPayload is the provider-specific encoded callback form: base64url
// JSON carrying the code and an internal provider name, delivered by
// providers that do not use plain query parameters.
type callbackPayload struct {
	Code     string `json:"code"`
	State    string `json:"state"`
	Provider string `json:"provider"`
	DeviceID string `json:"device_id"`
}

func decodeCallbackPayload(raw string) (callbackPayload, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		// Some providers pad their payloads.
		decoded, err = base64.URLEncoding.DecodeString(raw)
		if err != nil {
			return callbackPayload{}, errors.Wrap(ErrMissingCallbackData, "undecodable callback payload")
		}
	}

	var payload callbackPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return callbackPayload{}, errors.Wrap(ErrMissingCallbackData, "malformed callback payload")
	}
	return payload, nil
}
