package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/thomasmilici/domux-backend/internal/types"
)

func newTestGeminiClient(t *testing.T, baseURL string, maxRetries int) *geminiClient {
	t.Helper()
	return &geminiClient{
		log:        testLogger(t),
		baseURL:    baseURL,
		apiKey:     "test-key",
		model:      "gemini-2.5-flash",
		imageModel: "gemini-2.5-flash-image-preview",
		httpClient: http.DefaultClient,
		maxRetries: maxRetries,
	}
}

func textResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
}

func TestSummarizeTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(textResponse("  Ristrutturazione bagno  "))
	}))
	defer srv.Close()

	c := newTestGeminiClient(t, srv.URL, 0)
	title, err := c.SummarizeTitle(context.Background(), nil, "rifacimento bagno completo")
	if err != nil {
		t.Fatalf("SummarizeTitle: %v", err)
	}
	if title != "Ristrutturazione bagno" {
		t.Fatalf("title = %q", title)
	}
}

func TestGenerateEstimateParsesItemsAndSources(t *testing.T) {
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{
						"text": "```json\n{\"computo\":[{\"id\":1,\"codice_articolo\":\"A01\",\"descrizione\":\"Demolizione muro\",\"um\":\"mq\",\"quantita\":2,\"prezzo_unitario\":50,\"importo\":100}],\"relazione\":\"Relazione tecnica.\"}\n```",
					}},
				},
				"groundingMetadata": map[string]any{
					"groundingChunks": []any{
						map[string]any{"web": map[string]any{"uri": "https://prezzario.example", "title": "Prezzario"}},
					},
				},
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Tools) == 0 || req.Tools[0].GoogleSearch == nil {
			t.Errorf("expected search grounding tool")
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	c := newTestGeminiClient(t, srv.URL, 0)
	resp, err := c.GenerateEstimate(context.Background(), EstimateRequest{
		Description: "demolizione muro",
		Location:    "Milano",
		ProjectType: types.ProjectTypePrivateEstimate,
	})
	if err != nil {
		t.Fatalf("GenerateEstimate: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Importo != 100 {
		t.Fatalf("items = %+v", resp.Items)
	}
	if resp.ReportText != "Relazione tecnica." {
		t.Fatalf("report = %q", resp.ReportText)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].URI != "https://prezzario.example" {
		t.Fatalf("sources = %+v", resp.Sources)
	}
}

func TestGenerateEstimateFromImageCollectsPreview(t *testing.T) {
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{
						map[string]any{"text": `{"computo":[{"id":1,"importo":10}],"relazione":"ok"}`},
						map[string]any{"inlineData": map[string]any{"mimeType": "image/jpeg", "data": "aGVsbG8="}},
					},
				},
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash-image-preview") {
			t.Errorf("image variant must hit the image model, got %s", r.URL.Path)
		}
		var req generateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		found := false
		for _, part := range req.Contents[0].Parts {
			if part.InlineData != nil && part.InlineData.Data == "c291cmNl" {
				found = true
			}
		}
		if !found {
			t.Errorf("source image not inlined in request")
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	c := newTestGeminiClient(t, srv.URL, 0)
	resp, err := c.GenerateEstimateFromImage(context.Background(), EstimateRequest{
		Description: "tinteggiatura",
		Location:    "Roma",
	}, "c291cmNl", "image/jpeg")
	if err != nil {
		t.Fatalf("GenerateEstimateFromImage: %v", err)
	}
	if resp.PreviewImageBase64 != "aGVsbG8=" {
		t.Fatalf("preview = %q", resp.PreviewImageBase64)
	}
}

func TestDoRetriesOn503(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(textResponse("Titolo"))
	}))
	defer srv.Close()

	c := newTestGeminiClient(t, srv.URL, 2)
	title, err := c.SummarizeTitle(context.Background(), nil, "lavori")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if title != "Titolo" {
		t.Fatalf("title = %q", title)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDoDoesNotRetryOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestGeminiClient(t, srv.URL, 3)
	_, err := c.SummarizeTitle(context.Background(), nil, "lavori")
	if err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, 400 must not retry", calls)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                    `{"a":1}`,
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"  \n```json\n{\"a\":1}\n``` ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
