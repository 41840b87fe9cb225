package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/invoker"
	"github.com/dunamismax/pixelbench/internal/ratelimit"
	"github.com/dunamismax/pixelbench/internal/stage"
	"github.com/dunamismax/pixelbench/internal/storage"
	"go.opentelemetry.io/otel"
)

func testPNG(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return domain.EncodeImagePayload(buf.Bytes())
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
}

func newTestHost(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()

	stages := stage.NewSet(codec.Default(), storage.DirStore{Root: t.TempDir(), Bucket: "test"})
	opts = append(opts, WithTracer(otel.Tracer("test")))
	srv := NewServer(log.New(io.Discard, "", 0), stage.Functions("pixel_func", "x86", stages), opts...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestHost(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestListFunctions(t *testing.T) {
	ts := newTestHost(t)

	resp, err := http.Get(ts.URL + "/v1/functions")
	if err != nil {
		t.Fatalf("list functions: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Functions []functionInfo `json:"functions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Functions) != 5 {
		t.Fatalf("expected 5 functions, got %d", len(body.Functions))
	}
	if body.Functions[0].ID != "pixel_func1-x86" || body.Functions[0].Stage != stage.NameGreyscale {
		t.Fatalf("unexpected first function %+v", body.Functions[0])
	}
}

func TestInvokeOverHTTP(t *testing.T) {
	ts := newTestHost(t)
	client := invoker.NewHTTP(ts.URL, 10*time.Second)

	resp, err := client.Invoke(context.Background(), "pixel_func2-x86", domain.Request{
		Image:  testPNG(t),
		Params: domain.Params{"width": 6, "height": 4},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !resp.Success || resp.Image == "" {
		t.Fatalf("expected resized image, got %+v", resp)
	}

	resp, err = client.Invoke(context.Background(), "pixel_func5-x86", domain.Request{
		Image:  resp.Image,
		Params: domain.Params{"key": "outputs/http.png"},
	})
	if err != nil {
		t.Fatalf("invoke store: %v", err)
	}
	if !resp.Success || !strings.HasSuffix(resp.StorageURL, "/pixelbench-outputs/outputs/http.png") {
		t.Fatalf("expected stored object url, got %+v", resp)
	}
}

func TestInvokeFailuresKeepEnvelope(t *testing.T) {
	ts := newTestHost(t)

	httpResp, err := http.Post(ts.URL+"/v1/functions/pixel_func1-x86/invoke", "application/json", strings.NewReader(`{"params": {}}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", httpResp.StatusCode)
	}

	var resp domain.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.ErrorKind() != domain.KindValidation || resp.LogicTimeMS != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}

	client := invoker.NewHTTP(ts.URL, 10*time.Second)
	viaClient, err := client.Invoke(context.Background(), "pixel_func1-x86", domain.Request{})
	if err != nil {
		t.Fatalf("expected stage failure as response, got error %v", err)
	}
	if viaClient.ErrorKind() != domain.KindValidation {
		t.Fatalf("expected validation failure, got %+v", viaClient)
	}
}

func TestUnknownFunction(t *testing.T) {
	ts := newTestHost(t)

	_, err := invoker.NewHTTP(ts.URL, time.Second).Invoke(context.Background(), "pixel_func9-x86", domain.Request{Image: testPNG(t)})
	if !errors.Is(err, invoker.ErrUnknownFunction) {
		t.Fatalf("expected ErrUnknownFunction, got %v", err)
	}
}

func TestThrottledInvocation(t *testing.T) {
	ts := newTestHost(t, WithRateLimiter(denyAll{}))

	httpResp, err := http.Post(ts.URL+"/v1/functions/pixel_func1-x86/invoke", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", httpResp.StatusCode)
	}
	if httpResp.Header.Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", httpResp.Header.Get("Retry-After"))
	}

	_, err = invoker.NewHTTP(ts.URL, time.Second).Invoke(context.Background(), "pixel_func1-x86", domain.Request{Image: testPNG(t)})
	if !errors.Is(err, invoker.ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if invoker.Classify(err) != domain.KindTransport {
		t.Fatalf("expected throttling to classify as transport, got %s", invoker.Classify(err))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestHost(t)
	_, _ = invoker.NewHTTP(ts.URL, time.Second).Invoke(context.Background(), "pixel_func1-x86", domain.Request{Image: testPNG(t)})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `pixelbench_host_invocations_total{function="pixel_func1-x86",outcome="success"} 1`) {
		t.Fatalf("expected invocation counter, got:\n%s", body)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/functions/pixel_func1-x86/invoke": "/v1/functions/{id}/invoke",
		"/v1/functions":                        "/v1/functions",
		"/healthz":                             "/healthz",
		"/favicon.ico":                         "other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q): expected %q, got %q", path, want, got)
		}
	}
}
