package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"image":"aGk=","params":{"width":320,"height":"240"}}`))
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Image != "aGk=" {
		t.Fatalf("unexpected image %q", req.Image)
	}
	if req.Params.Int(ParamWidth, 0) != 320 || req.Params.Int(ParamHeight, 0) != 240 {
		t.Fatalf("unexpected params %v", req.Params)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request: %v", err)
	}
}

func TestDecodeRequestUnwrapsBody(t *testing.T) {
	inner := `{"image":"aGk=","params":{"angle":180}}`
	quoted, _ := json.Marshal(inner)

	for name, body := range map[string]string{
		"string body": `{"body":` + string(quoted) + `}`,
		"object body": `{"body":` + inner + `}`,
	} {
		req, err := DecodeRequest([]byte(body))
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if req.Image != "aGk=" || req.Params.Float(ParamAngle, 0) != 180 {
			t.Fatalf("%s: unexpected request %+v", name, req)
		}
	}
}

func TestDecodeRequestRejectsNonObjects(t *testing.T) {
	for _, body := range []string{``, `[]`, `"image"`, `{"image":`} {
		if _, err := DecodeRequest([]byte(body)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("body %q: expected ErrMalformedEnvelope, got %v", body, err)
		}
	}
}

func TestDecodeRequestIgnoresNonObjectParams(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"image":"aGk=","params":[1,2]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Params != nil {
		t.Fatalf("expected params ignored, got %v", req.Params)
	}
}

func TestMissingImage(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"params":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !errors.Is(req.Validate(), ErrMissingImage) {
		t.Fatalf("expected ErrMissingImage, got %v", req.Validate())
	}
}

func TestDecodeImagePayload(t *testing.T) {
	data, err := DecodeImagePayload("data:image/png;base64,aGVsbG8=")
	if err != nil || string(data) != "hello" {
		t.Fatalf("data uri: got %q, %v", data, err)
	}

	data, err = DecodeImagePayload("aGVsbG8")
	if err != nil || string(data) != "hello" {
		t.Fatalf("unpadded: got %q, %v", data, err)
	}

	if _, err := DecodeImagePayload("!!not base64!!"); !errors.Is(err, ErrInvalidBase64) {
		t.Fatalf("expected ErrInvalidBase64, got %v", err)
	}
	if _, err := DecodeImagePayload(""); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}

	if got := EncodeImagePayload([]byte("hello")); got != "aGVsbG8=" {
		t.Fatalf("unexpected encoding %q", got)
	}
}

func TestParams(t *testing.T) {
	p := Params{
		"f":     12.9,
		"s":     " 7 ",
		"bad":   "seven",
		"bool":  true,
		"key":   "",
		"alias": "outputs/a.png",
	}

	if p.Int("f", 0) != 12 {
		t.Fatalf("expected truncated float, got %d", p.Int("f", 0))
	}
	if p.Int("s", 0) != 7 {
		t.Fatalf("expected parsed string, got %d", p.Int("s", 0))
	}
	if p.Int("bad", 3) != 3 || p.Int("bool", 3) != 3 || p.Int("missing", 3) != 3 {
		t.Fatal("expected fallback for unusable values")
	}
	if p.Float("s", 0) != 7 || p.Float("bad", 1.5) != 1.5 {
		t.Fatal("unexpected float parsing")
	}
	if got := p.String("default", "key", "alias"); got != "outputs/a.png" {
		t.Fatalf("expected alias value, got %q", got)
	}
	if got := p.String("default", "missing"); got != "default" {
		t.Fatalf("expected fallback, got %q", got)
	}

	merged := p.With(Params{"f": 1})
	if merged.Int("f", 0) != 1 || p.Int("f", 0) != 12 {
		t.Fatal("With must not modify the receiver")
	}
}

func TestFailure(t *testing.T) {
	resp := Failure(KindStorage, "ConvertAndStore", errors.New("bucket missing"))
	if resp.Success {
		t.Fatal("expected unsuccessful response")
	}
	if resp.ErrorKind() != KindStorage {
		t.Fatalf("unexpected kind %q", resp.ErrorKind())
	}
	if !strings.Contains(resp.ErrorString(), "ConvertAndStore: bucket missing") {
		t.Fatalf("unexpected error string %q", resp.ErrorString())
	}

	ok := Response{Success: true}
	if ok.ErrorKind() != "" || ok.ErrorString() != "" {
		t.Fatal("expected empty error accessors on success")
	}
}

func TestFunctionID(t *testing.T) {
	if got := FunctionID("pixel_func", "arm", 3); got != "pixel_func3-arm" {
		t.Fatalf("unexpected function id %q", got)
	}
}
