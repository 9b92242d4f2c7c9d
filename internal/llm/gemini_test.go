package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGemini(ts *httptest.Server) *Gemini {
	g := NewGemini("test-key", testLogger())
	g.baseURL = ts.URL
	g.httpClient = ts.Client()
	return g
}

func TestGeminiInvoke_Success(t *testing.T) {
	var gotPath string
	var gotBody geminiRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		io.WriteString(w, `{
			"candidates": [{"content": {"parts": [{"text": "A concise "}, {"text": "summary."}]}}],
			"usageMetadata": {"totalTokenCount": 423}
		}`)
	}))
	defer ts.Close()

	result, err := newTestGemini(ts).Invoke(context.Background(), Request{
		Model:       "gemini-2.5-flash",
		System:      "You summarize.",
		User:        "Article text.",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.Text != "A concise summary." {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Tokens != 423 {
		t.Errorf("Tokens = %d, want 423", result.Tokens)
	}

	if !strings.Contains(gotPath, "gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "You summarize." {
		t.Errorf("systemInstruction = %+v", gotBody.SystemInstruction)
	}
	if len(gotBody.Tools) != 0 {
		t.Errorf("tools attached without web search: %v", gotBody.Tools)
	}
}

func TestGeminiInvoke_WebSearchAttachesTool(t *testing.T) {
	var gotBody geminiRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`)
	}))
	defer ts.Close()

	_, err := newTestGemini(ts).Invoke(context.Background(), Request{
		Model: "gemini-2.5-flash", User: "u", WebSearch: true,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(gotBody.Tools) != 1 {
		t.Fatalf("tools = %v, want one google_search entry", gotBody.Tools)
	}
	if _, ok := gotBody.Tools[0]["google_search"]; !ok {
		t.Errorf("tools[0] = %v", gotBody.Tools[0])
	}
}

func TestGeminiInvoke_UnavailableIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error": {"code": 503, "message": "The model is overloaded.", "status": "UNAVAILABLE"}}`)
	}))
	defer ts.Close()

	_, err := newTestGemini(ts).Invoke(context.Background(), Request{Model: "gemini-2.5-flash", User: "u"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if !apiErr.Transient {
		t.Error("Transient = false, want true for 503 UNAVAILABLE")
	}
	if apiErr.Message != "The model is overloaded." {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestGeminiInvoke_BadRequestIsFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"code": 400, "message": "Invalid model name.", "status": "INVALID_ARGUMENT"}}`)
	}))
	defer ts.Close()

	_, err := newTestGemini(ts).Invoke(context.Background(), Request{Model: "nope", User: "u"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Transient {
		t.Error("Transient = true, want false for 400")
	}
}

func TestGeminiListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models": [{"name": "models/gemini-2.5-flash"}, {"name": "models/gemini-2.0-flash"}]}`)
	}))
	defer ts.Close()

	names, err := newTestGemini(ts).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(names) != 2 || names[0] != "gemini-2.5-flash" || names[1] != "gemini-2.0-flash" {
		t.Errorf("names = %v", names)
	}
}
