package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planBody(weekly any) map[string]any {
	body := map[string]any{
		"profile": map[string]any{
			"gender":            "male",
			"age_years":         30,
			"height_cm":         180,
			"current_weight_kg": 80,
			"activity":          "moderate",
			"target_weight_kg":  70,
		},
	}
	if weekly != nil {
		body["weekly_loss_kg"] = weekly
	}
	return body
}

func TestCalculatePlan(t *testing.T) {
	router := newTestHandler(t, newMemoryBlobStore()).newRouter()

	w := doRequest(router, http.MethodPost, "/api/plan/calculate", planBody(nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[planResponse](t, w)
	assert.Equal(t, defaultWeeklyLossKG, resp.Plan.WeeklyLossKG)
	assert.Equal(t, 2209, resp.Plan.RecommendedCalories)
	require.NotNil(t, resp.Plan.EstimatedDate)
	assert.Equal(t, "2027-03-04", resp.Plan.EstimatedDate.Format(dateLayout))
	assert.Empty(t, resp.Advice)

	w = doRequest(router, http.MethodPost, "/api/plan/calculate", planBody(0))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[planResponse](t, w).Plan.Maintenance)

	for _, weekly := range []any{-1, 3, 1e-300} {
		w = doRequest(router, http.MethodPost, "/api/plan/calculate", planBody(weekly))
		assert.Equal(t, http.StatusBadRequest, w.Code, "weekly_loss_kg=%v", weekly)
	}
}

// TestCalculatePlan_PrefillsWeight takes the current weight from the day's
// record when the profile leaves it out.
func TestCalculatePlan_PrefillsWeight(t *testing.T) {
	h := newTestHandler(t, newMemoryBlobStore())
	router := h.newRouter()
	doRequest(router, http.MethodPut, "/api/records/2026-10-15/weight", map[string]any{"weight_kg": 90})

	body := planBody(nil)
	delete(body["profile"].(map[string]any), "current_weight_kg")
	w := doRequest(router, http.MethodPost, "/api/plan/calculate", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[planResponse](t, w)
	assert.Equal(t, 90.0, resp.Profile.CurrentWeightKG)
	assert.Equal(t, 20.0, resp.Plan.WeightToLoseKG)
}

func TestAnalyzePlan(t *testing.T) {
	h := newTestHandler(t, newMemoryBlobStore())
	router := h.newRouter()

	// No AI configured: fixed advice, numbers unaffected.
	w := doRequest(router, http.MethodPost, "/api/plan/analyze", planBody(nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[planResponse](t, w)
	assert.Equal(t, fallbackAdvice, resp.Advice)
	assert.False(t, resp.AdviceFromAI)
	assert.Equal(t, 2209, resp.Plan.RecommendedCalories)

	gw := &fakeGateway{advice: "Prioritise protein."}
	h.ai = gw
	doRequest(router, http.MethodPut, "/api/settings/ai", map[string]any{"api_key": "sk-test"})

	resp = decodeBody[planResponse](t, doRequest(router, http.MethodPost, "/api/plan/analyze", planBody(nil)))
	assert.Equal(t, "Prioritise protein.", resp.Advice)
	assert.True(t, resp.AdviceFromAI)

	gw.err = errAIBusy
	resp = decodeBody[planResponse](t, doRequest(router, http.MethodPost, "/api/plan/analyze", planBody(nil)))
	assert.Equal(t, fallbackAdvice, resp.Advice)
	assert.Equal(t, 2209, resp.Plan.RecommendedCalories)
}

func TestConfirmPlan(t *testing.T) {
	h := newTestHandler(t, newMemoryBlobStore())
	router := h.newRouter()

	w := doRequest(router, http.MethodPost, "/api/plan/confirm", planBody(0.5))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st, _ := h.store.View()
	assert.Equal(t, 2209, st.Settings.TargetCalories)

	w = doRequest(router, http.MethodPost, "/api/plan/confirm", map[string]any{"profile": map[string]any{"gender": "male"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	st, _ = h.store.View()
	assert.Equal(t, 2209, st.Settings.TargetCalories)
}
