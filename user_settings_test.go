package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	router := newTestHandler(t, newMemoryBlobStore()).newRouter()

	w := doRequest(router, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[settingsResponse](t, w)
	assert.Equal(t, 1200, got.TargetCalories)
	assert.Nil(t, got.AIConfig)

	w = doRequest(router, http.MethodPut, "/api/settings/target-calories", map[string]any{"target_calories": 1750})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1750, decodeBody[settingsResponse](t, w).TargetCalories)

	w = doRequest(router, http.MethodPut, "/api/settings/target-calories", map[string]any{"target_calories": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPut, "/api/settings/ai", map[string]any{
		"api_key":  "sk-abcdefghijkl1234",
		"base_url": "https://llm.example.com/v1/",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decodeBody[settingsResponse](t, w)
	require.NotNil(t, got.AIConfig)
	assert.Equal(t, "***************1234", got.AIConfig.APIKey)
	assert.Equal(t, "https://llm.example.com/v1", got.AIConfig.BaseURL)
	assert.Equal(t, defaultAIModel, got.AIConfig.Model)

	w = doRequest(router, http.MethodPut, "/api/settings/ai", map[string]any{"api_key": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(router, http.MethodPut, "/api/settings/ai", map[string]any{"api_key": "k", "base_url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", maskAPIKey(""))
	assert.Equal(t, "********", maskAPIKey("12345678"))
	assert.Equal(t, "*****6789", maskAPIKey("123456789"))
}

func TestNormalizeAIConfig_Defaults(t *testing.T) {
	cfg, err := normalizeAIConfig(setAIConfigRequest{APIKey: "  key  "})
	require.NoError(t, err)
	assert.Equal(t, aiConfig{APIKey: "key", BaseURL: defaultAIBaseURL, Model: defaultAIModel}, cfg)
}
