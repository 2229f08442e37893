package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "postbot/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, logx.Nop())
}

func completionResponse(text string) string {
	return `{"choices":[{"message":{"content":` + jsonString(text) + `},"finish_reason":"stop"}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGeneratePost(t *testing.T) {
	t.Parallel()
	var gotReq chatRequest
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionResponse("  generated text  ")))
	})

	text, err := c.GeneratePost(context.Background(), FormatSelling, "shoes, discount", "red only")
	if err != nil {
		t.Fatalf("GeneratePost: %v", err)
	}
	if text != "generated text" {
		t.Fatalf("text = %q, want trimmed completion", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "shoes, discount") {
		t.Fatal("keywords missing from user prompt")
	}
	if !strings.Contains(gotReq.Messages[1].Content, "red only") {
		t.Fatal("details missing from user prompt")
	}
}

func TestImproveTextUsesInstructions(t *testing.T) {
	t.Parallel()
	var gotReq chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(completionResponse("better")))
	})

	text, err := c.ImproveText(context.Background(), "original draft", "make it shorter")
	if err != nil {
		t.Fatalf("ImproveText: %v", err)
	}
	if text != "better" {
		t.Fatalf("text = %q", text)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "original draft") ||
		!strings.Contains(gotReq.Messages[1].Content, "make it shorter") {
		t.Fatalf("user prompt = %q", gotReq.Messages[1].Content)
	}
	if gotReq.Temperature != 0.5 {
		t.Fatalf("temperature = %v, want the lower editing value", gotReq.Temperature)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	})
	_, err := c.GeneratePost(context.Background(), FormatInfo, "x", "")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want api error message", err)
	}
}

func TestHTTPErrorSurfaced(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	_, err := c.GeneratePost(context.Background(), FormatInfo, "x", "")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestEmptyCompletionRejected(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := c.GeneratePost(context.Background(), FormatInfo, "x", ""); err == nil {
		t.Fatal("expected error for empty choices")
	}

	c2 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionResponse("   ")))
	})
	if _, err := c2.GeneratePost(context.Background(), FormatInfo, "x", ""); err == nil {
		t.Fatal("expected error for blank completion text")
	}
}

func TestApplySwapsSettings(t *testing.T) {
	t.Parallel()
	var gotModel string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_, _ = w.Write([]byte(completionResponse("ok")))
	})

	cfg, _ := c.snapshot()
	cfg.Model = "gpt-4.1"
	c.Apply(cfg)
	if _, err := c.GeneratePost(context.Background(), FormatPromo, "x", ""); err != nil {
		t.Fatalf("GeneratePost: %v", err)
	}
	if gotModel != "gpt-4.1" {
		t.Fatalf("model after Apply = %q", gotModel)
	}
}

func TestFormats(t *testing.T) {
	t.Parallel()
	for _, f := range Formats() {
		if !ValidFormat(f) {
			t.Fatalf("Formats() returned invalid format %q", f)
		}
		if FormatName(f) == "" {
			t.Fatalf("no display name for %q", f)
		}
	}
	if ValidFormat("haiku") {
		t.Fatal("unknown format accepted")
	}
}
