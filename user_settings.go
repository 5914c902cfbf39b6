package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// getSettings returns the target calories and AI configuration. The API key
// is masked so it never leaves the server in full.
// GET /api/settings.
func (h *Handler) getSettings(c *gin.Context) {
	st, _ := h.store.View()
	c.JSON(http.StatusOK, toSettingsResponse(st.Settings))
}

func toSettingsResponse(s appSettings) settingsResponse {
	resp := settingsResponse{TargetCalories: s.TargetCalories}
	if s.AIConfig != nil {
		resp.AIConfig = &aiConfigResponse{
			APIKey:  maskAPIKey(s.AIConfig.APIKey),
			BaseURL: s.AIConfig.BaseURL,
			Model:   s.AIConfig.Model,
		}
	}
	return resp
}

// maskAPIKey keeps the last four characters of keys long enough to have them.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// setTargetCalories sets the daily calorie budget.
// PUT /api/settings/target-calories. Body: { "target_calories": 1800 }.
func (h *Handler) setTargetCalories(c *gin.Context) {
	var body setTargetCaloriesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body: target_calories must be an integer")
		return
	}
	if body.TargetCalories == nil {
		apiError(c, http.StatusBadRequest, "target_calories is required")
		return
	}

	if err := h.store.SetTargetCalories(c, *body.TargetCalories); err != nil {
		respondError(c, err)
		return
	}
	st, _ := h.store.View()
	c.JSON(http.StatusOK, toSettingsResponse(st.Settings))
}

// normalizeAIConfig trims input, applies the default endpoint and model, and
// strips one trailing slash from the base URL.
func normalizeAIConfig(req setAIConfigRequest) (aiConfig, error) {
	cfg := aiConfig{
		APIKey:  strings.TrimSpace(req.APIKey),
		BaseURL: strings.TrimSuffix(strings.TrimSpace(req.BaseURL), "/"),
		Model:   strings.TrimSpace(req.Model),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultAIModel
	}
	if err := validateStruct(cfg); err != nil {
		return aiConfig{}, err
	}
	return cfg, nil
}

// setAIConfig saves the OpenAI-compatible endpoint used for food photos and plan advice.
// PUT /api/settings/ai. Body: { "api_key": "...", "base_url": "...", "model": "..." }.
func (h *Handler) setAIConfig(c *gin.Context) {
	var body setAIConfigRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := normalizeAIConfig(body)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.store.SetAIConfig(c, cfg); err != nil {
		respondError(c, err)
		return
	}
	st, _ := h.store.View()
	c.JSON(http.StatusOK, toSettingsResponse(st.Settings))
}
