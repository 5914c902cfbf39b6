package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

/* ─── Gateway contract ───────────────────────────────────────────────── */

// foodGuess is what image recognition returns: a pre-fill for a meal entry,
// never written to the store by itself.
type foodGuess struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
}

// aiGateway is the external AI collaborator. Both calls may fail; callers
// decide whether a failure is surfaced (food) or replaced (advice).
type aiGateway interface {
	DescribeFood(ctx context.Context, cfg aiConfig, imageDataURL string) (foodGuess, error)
	AdviseOnPlan(ctx context.Context, cfg aiConfig, p profile, tdee int) (string, error)
}

const (
	defaultAIBaseURL = "https://api.openai.com/v1"
	defaultAIModel   = "gpt-4o"

	// unknownFoodName is the sentinel the model is told to use when it
	// cannot identify the food.
	unknownFoodName = "unknown food"

	// fallbackAdvice replaces advisory text whenever the advice call fails.
	fallbackAdvice = "Keep a balanced diet, stay active, and progress toward your goal step by step."

	maxFoodImageBytes = 4 << 20
)

/* ─── Prompts ────────────────────────────────────────────────────────── */

const foodImagePrompt = `Identify the food in this image and estimate its calories (kcal). ` +
	`Return ONLY a valid JSON object with no markdown formatting, like {"name": "food name", "calories": 100}. ` +
	`If you cannot identify it, return {"name": "` + unknownFoodName + `", "calories": 0}.`

// planAdvicePromptTemplate is filled with the profile summary and computed TDEE.
const planAdvicePromptTemplate = `As a professional dietitian, give short weight-loss advice for this person:
- Gender: %s
- Age: %d years
- Height: %.0f cm
- Current weight: %.1f kg
- Target weight: %.1f kg
- Activity level: %s
- Computed TDEE: %d kcal

Reply in under 100 words with the most important diet and exercise advice.`

var activityDescriptions = map[string]string{
	"sedentary":   "sedentary",
	"light":       "lightly active",
	"moderate":    "moderately active",
	"active":      "very active",
	"very_active": "extremely active",
}

func buildPlanAdvicePrompt(p profile, tdee int) string {
	return fmt.Sprintf(planAdvicePromptTemplate,
		p.Gender, p.AgeYears, p.HeightCM, p.CurrentWeightKG, p.TargetWeightKG,
		activityDescriptions[p.Activity], tdee)
}

/* ─── OpenAI-compatible HTTP client ──────────────────────────────────── */

// chatMessage is one message of a chat completions request. Content is either
// a plain string or a list of chatContentPart for multimodal input.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// openAIGateway talks to any OpenAI-compatible /chat/completions endpoint.
// Only one request may be in flight at a time and outbound calls are rate
// limited.
type openAIGateway struct {
	client  *http.Client
	busy    *semaphore.Weighted
	limiter *rate.Limiter
	metrics *metricsManager
}

func newOpenAIGateway(timeout time.Duration, perMinute, burst int, metrics *metricsManager) *openAIGateway {
	return &openAIGateway{
		client:  &http.Client{Timeout: timeout},
		busy:    semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		metrics: metrics,
	}
}

// acquire claims the single in-flight slot. The returned func releases it.
func (g *openAIGateway) acquire() (func(), error) {
	if !g.busy.TryAcquire(1) {
		return nil, errAIBusy
	}
	if !g.limiter.Allow() {
		g.busy.Release(1)
		return nil, errAIRateLimited
	}
	return func() { g.busy.Release(1) }, nil
}

func (g *openAIGateway) DescribeFood(ctx context.Context, cfg aiConfig, imageDataURL string) (foodGuess, error) {
	release, err := g.acquire()
	if err != nil {
		return foodGuess{}, err
	}
	defer release()

	content, err := g.chat(ctx, cfg, "describe food", chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{
				{Type: "text", Text: foodImagePrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: imageDataURL}},
			},
		}},
		MaxTokens: 300,
	})
	if err != nil {
		g.metrics.countAICall("describe_food", "error")
		return foodGuess{}, err
	}

	guess, err := parseFoodGuess(content)
	if err != nil {
		logrus.Warnf("[suggest] unusable food response: %v", err)
		g.metrics.countAICall("describe_food", "unparseable")
		return foodGuess{}, &GatewayError{Op: "describe food", Err: err}
	}
	g.metrics.countAICall("describe_food", "ok")
	return guess, nil
}

func (g *openAIGateway) AdviseOnPlan(ctx context.Context, cfg aiConfig, p profile, tdee int) (string, error) {
	release, err := g.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	content, err := g.chat(ctx, cfg, "plan advice", chatRequest{
		Model:     cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: buildPlanAdvicePrompt(p, tdee)}},
		MaxTokens: 200,
	})
	if err != nil {
		g.metrics.countAICall("plan_advice", "error")
		return "", err
	}
	g.metrics.countAICall("plan_advice", "ok")
	return content, nil
}

// chat sends a chat completions request and returns choices[0].message.content.
// Every failure comes back as *GatewayError.
func (g *openAIGateway) chat(ctx context.Context, cfg aiConfig, op string, reqBody chatRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &GatewayError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &GatewayError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", &GatewayError{Op: op, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New(upstreamErrorMessage(respBytes))}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", &GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(result.Choices) == 0 {
		return "", &GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New("no choices in response")}
	}
	return result.Choices[0].Message.Content, nil
}

// upstreamErrorMessage pulls error.message out of an OpenAI-style error body,
// falling back to the raw body.
func upstreamErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}

/* ─── Response parsing ───────────────────────────────────────────────── */

// extractJSONObject returns the first balanced {...} span of text, ignoring
// braces inside JSON strings. Code fences and surrounding prose are skipped
// naturally since they sit outside the span.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// parseFoodGuess extracts and validates {"name": string, "calories": integer}.
func parseFoodGuess(text string) (foodGuess, error) {
	span, ok := extractJSONObject(text)
	if !ok {
		return foodGuess{}, errors.New("response does not contain a JSON object")
	}
	var raw struct {
		Name     *string  `json:"name"`
		Calories *float64 `json:"calories"`
	}
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return foodGuess{}, fmt.Errorf("decode food JSON: %w", err)
	}
	if raw.Name == nil || strings.TrimSpace(*raw.Name) == "" {
		return foodGuess{}, errors.New("food JSON has no name")
	}
	if raw.Calories == nil {
		return foodGuess{}, errors.New("food JSON has no calories")
	}
	if *raw.Calories != math.Trunc(*raw.Calories) || *raw.Calories < 0 {
		return foodGuess{}, fmt.Errorf("calories must be a non-negative integer, got %v", *raw.Calories)
	}
	return foodGuess{Name: strings.TrimSpace(*raw.Name), Calories: int(*raw.Calories)}, nil
}

// planAdvice asks the gateway for advisory text. Any failure, including a
// missing AI configuration, yields fallbackAdvice.
func planAdvice(ctx context.Context, gw aiGateway, cfg *aiConfig, p profile, tdee int) (text string, fromAI bool) {
	if gw == nil || cfg == nil || cfg.APIKey == "" {
		return fallbackAdvice, false
	}
	advice, err := gw.AdviseOnPlan(ctx, *cfg, p, tdee)
	if err != nil {
		logrus.Warnf("[suggest] plan advice failed, using fallback: %v", err)
		return fallbackAdvice, false
	}
	if strings.TrimSpace(advice) == "" {
		return fallbackAdvice, false
	}
	return advice, true
}

/* ─── Handler ────────────────────────────────────────────────────────── */

// describeFood handles POST /api/ai/describe-food. Accepts a multipart image
// (field "image", at most 4 MiB) and returns a {name, calories} pre-fill.
// Nothing is written to the store.
func (h *Handler) describeFood(c *gin.Context) {
	st, _ := h.store.View()
	cfg := st.Settings.AIConfig
	if cfg == nil || cfg.APIKey == "" {
		apiError(c, http.StatusBadRequest, "AI is not configured: set an API key first")
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		apiError(c, http.StatusBadRequest, "image file is required")
		return
	}
	if fileHeader.Size > maxFoodImageBytes {
		apiError(c, http.StatusBadRequest, "image must be smaller than 4 MB")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, "could not read image")
		return
	}
	defer f.Close()
	img, err := io.ReadAll(io.LimitReader(f, maxFoodImageBytes+1))
	if err != nil || len(img) > maxFoodImageBytes {
		apiError(c, http.StatusBadRequest, "could not read image")
		return
	}

	mime := http.DetectContentType(img)
	if !strings.HasPrefix(mime, "image/") {
		apiError(c, http.StatusBadRequest, "file is not an image")
		return
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)

	// No cancellation: the call runs to completion even if the client goes away.
	guess, err := h.ai.DescribeFood(context.WithoutCancel(c.Request.Context()), *cfg, dataURL)
	if err != nil {
		logrus.Warnf("[suggest] describe food failed: %v", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, guess)
}
