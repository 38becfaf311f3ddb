package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/types"
)

// EstimateRequest carries everything the model needs to draft a computo
// metrico: the joined work description plus the session's classification.
type EstimateRequest struct {
	Description     string
	Location        string
	ProjectType     types.ProjectType
	Region          string
	PreferredStores []string
}

// EstimateResponse is the drafted estimate before any user edit.
type EstimateResponse struct {
	Items              []types.ComputoItem
	ReportText         string
	PreviewImageBase64 string
	Sources            []types.GroundingSource
}

type AIClient interface {
	SummarizeTitle(ctx context.Context, items []types.ComputoItem, description string) (string, error)
	GenerateEstimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error)
	GenerateEstimateFromImage(ctx context.Context, req EstimateRequest, imageBase64, mimeType string) (*EstimateResponse, error)
}

type geminiClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	imageModel string
	httpClient *http.Client

	maxRetries int
}

func NewGeminiClient(log *logger.Logger) (AIClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	baseURL := os.Getenv("GEMINI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
	}

	imageModel := os.Getenv("GEMINI_IMAGE_MODEL")
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image-preview"
	}

	// Estimate drafting regularly runs past a minute on large descriptions.
	timeoutSec := 180
	if v := os.Getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("GEMINI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &geminiClient{
		log:        log.With("service", "GeminiClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		imageModel: imageModel,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type geminiHTTPError struct {
	StatusCode int
	Body       string
}

func (e *geminiHTTPError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// caller cancellation is caught by the ctx check in the call loop
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var httpErr *geminiHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

func (c *geminiClient) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &geminiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *geminiClient) do(ctx context.Context, path string, body any, out any) error {
	// exponential backoff: 1s, 2s, 4s, 8s (cap ~10s)
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("gemini decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		// Respect Retry-After when present
		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("Gemini request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// ---- generateContent wire types ----

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
}

type generateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web,omitempty"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
}

const titleSystemPrompt = "Sei un assistente per imprese edili. Riassumi i lavori in un titolo " +
	"brevissimo (massimo 6 parole), senza punteggiatura finale. Rispondi solo con il titolo."

const estimateSystemPrompt = "Sei un geometra esperto di computi metrici estimativi. Dato l'elenco " +
	"dei lavori, produci un JSON con: \"computo\" (array di voci con id numerico progressivo, " +
	"codice_articolo, descrizione, um, quantita, prezzo_unitario, importo = quantita per prezzo) " +
	"e \"relazione\" (relazione tecnica discorsiva in italiano). Usa prezzi correnti della zona indicata."

func (c *geminiClient) modelPath(model string) string {
	return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
}

func (c *geminiClient) SummarizeTitle(ctx context.Context, items []types.ComputoItem, description string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Lavori:\n")
	sb.WriteString(description)
	if len(items) > 0 {
		sb.WriteString("\nVoci principali:\n")
		for i, it := range items {
			if i >= 10 {
				break
			}
			sb.WriteString("- " + it.Descrizione + "\n")
		}
	}

	req := generateContentRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: titleSystemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: sb.String()}}},
		},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0.2},
	}

	var resp generateContentResponse
	if err := c.do(ctx, c.modelPath(c.model), req, &resp); err != nil {
		return "", err
	}
	title := strings.TrimSpace(firstText(&resp))
	if title == "" {
		return "", fmt.Errorf("empty title from model")
	}
	return title, nil
}

func (c *geminiClient) GenerateEstimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error) {
	body := generateContentRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: estimateSystemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: estimateUserPrompt(req)}}},
		},
		Tools:            []geminiTool{{GoogleSearch: &struct{}{}}},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0.2},
	}

	var resp generateContentResponse
	if err := c.do(ctx, c.modelPath(c.model), body, &resp); err != nil {
		return nil, err
	}
	return parseEstimateResponse(&resp)
}

func (c *geminiClient) GenerateEstimateFromImage(ctx context.Context, req EstimateRequest, imageBase64, mimeType string) (*EstimateResponse, error) {
	if strings.TrimSpace(imageBase64) == "" {
		return nil, fmt.Errorf("imageBase64 required")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	body := generateContentRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: estimateSystemPrompt +
			" La foto allegata mostra lo stato attuale: genera anche un'immagine di anteprima del risultato dei lavori."}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{
				{Text: estimateUserPrompt(req)},
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: imageBase64}},
			}},
		},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0.2},
	}

	var resp generateContentResponse
	if err := c.do(ctx, c.modelPath(c.imageModel), body, &resp); err != nil {
		return nil, err
	}
	return parseEstimateResponse(&resp)
}

func estimateUserPrompt(req EstimateRequest) string {
	var sb strings.Builder
	sb.WriteString("Descrizione lavori: ")
	sb.WriteString(req.Description)
	sb.WriteString("\nLuogo: ")
	sb.WriteString(req.Location)
	if req.ProjectType != "" {
		sb.WriteString("\nTipo progetto: ")
		sb.WriteString(string(req.ProjectType))
	}
	if req.Region != "" {
		sb.WriteString("\nRegione (prezzario di riferimento): ")
		sb.WriteString(req.Region)
	}
	if len(req.PreferredStores) > 0 {
		sb.WriteString("\nFornitori preferiti: ")
		sb.WriteString(strings.Join(req.PreferredStores, ", "))
	}
	return sb.String()
}

func firstText(resp *generateContentResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

// estimatePayload is the JSON shape the estimate prompt asks for.
type estimatePayload struct {
	Computo   []types.ComputoItem `json:"computo"`
	Relazione string              `json:"relazione"`
}

func parseEstimateResponse(resp *generateContentResponse) (*EstimateResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	out := &EstimateResponse{}
	var jsonText string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			out.PreviewImageBase64 = p.InlineData.Data
			continue
		}
		if p.Text != "" {
			jsonText += p.Text
		}
	}
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no text part in response")
	}

	var payload estimatePayload
	if err := json.Unmarshal([]byte(stripCodeFence(jsonText)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	if len(payload.Computo) == 0 {
		return nil, fmt.Errorf("model returned no estimate items")
	}
	out.Items = payload.Computo
	out.ReportText = payload.Relazione

	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				out.Sources = append(out.Sources, types.GroundingSource{
					URI:   chunk.Web.URI,
					Title: chunk.Web.Title,
				})
			}
		}
	}
	return out, nil
}

// stripCodeFence unwraps ```json ... ``` blocks the model sometimes emits
// even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
