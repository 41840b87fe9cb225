package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the envelope every stage accepts.
type Request struct {
	Image  string `json:"image"`
	Params Params `json:"params,omitempty"`
}

// Response is the envelope every stage returns. Exactly one of Image,
// StorageURL and Error is set.
type Response struct {
	Success     bool        `json:"success"`
	Image       string      `json:"image,omitempty"`
	StorageURL  string      `json:"storage_url,omitempty"`
	LogicTimeMS float64     `json:"logic_time_ms"`
	Error       *StageError `json:"error,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Image) == "" {
		return ErrMissingImage
	}
	return nil
}

type envelope struct {
	Image  *string         `json:"image"`
	Params json.RawMessage `json:"params"`
	Body   json.RawMessage `json:"body"`
}

// DecodeRequest parses a raw envelope. A gateway-style {"body": ...}
// wrapper, either a JSON string or an object, is unwrapped once.
func DecodeRequest(body []byte) (Request, error) {
	env, err := decodeEnvelope(body)
	if err != nil {
		return Request{}, err
	}

	if len(env.Body) > 0 && env.Image == nil {
		inner := []byte(env.Body)
		var text string
		if err := json.Unmarshal(inner, &text); err == nil {
			inner = []byte(text)
		}
		env, err = decodeEnvelope(inner)
		if err != nil {
			return Request{}, err
		}
	}

	req := Request{}
	if env.Image != nil {
		req.Image = *env.Image
	}
	if len(env.Params) > 0 {
		var params Params
		// Non-object params are ignored and defaults apply.
		if err := json.Unmarshal(env.Params, &params); err == nil {
			req.Params = params
		}
	}
	return req, nil
}

func decodeEnvelope(body []byte) (envelope, error) {
	var env envelope
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return envelope{}, fmt.Errorf("%w: expected JSON object", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// DecodeImagePayload turns the text-safe image field back into bytes. Data
// URI prefixes are stripped and unpadded input is accepted.
func DecodeImagePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.IndexByte(payload, ','); idx >= 0 {
			payload = payload[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var lenientErr error
		data, lenientErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if lenientErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}

func EncodeImagePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
