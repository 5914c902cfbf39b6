package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// planRequest is the body of every /api/plan endpoint. WeeklyLossKG defaults
// to 0.5 when omitted. When CurrentWeightKG is 0 it is pre-filled from the
// weight logged on Date (default today), if any.
type planRequest struct {
	Profile      profile  `json:"profile"`
	WeeklyLossKG *float64 `json:"weekly_loss_kg"`
	Date         string   `json:"date"`
}

type planResponse struct {
	Profile profile    `json:"profile"`
	Plan    weightPlan `json:"plan"`
	// Advice is only set by /api/plan/analyze.
	Advice       string `json:"advice,omitempty"`
	AdviceFromAI bool   `json:"advice_from_ai,omitempty"`
}

// bindPlanRequest decodes the body, applies defaults, and computes the plan.
// Writes the error response itself and returns ok=false on failure.
func (h *Handler) bindPlanRequest(c *gin.Context) (planRequest, weightPlan, bool) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return req, weightPlan{}, false
	}

	date := req.Date
	if date == "" {
		date = h.today()
	}
	if _, err := parseDateKey(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return req, weightPlan{}, false
	}
	if req.Profile.CurrentWeightKG == 0 {
		if rec, ok := h.store.Record(date); ok && rec.Weight != nil {
			req.Profile.CurrentWeightKG = *rec.Weight
		}
	}

	weekly := defaultWeeklyLossKG
	if req.WeeklyLossKG != nil {
		weekly = *req.WeeklyLossKG
	}

	plan, err := computePlan(req.Profile, weekly, h.now())
	if err != nil {
		respondError(c, err)
		return req, weightPlan{}, false
	}
	return req, plan, true
}

// calculatePlan returns the numbers only; used when the weekly rate changes.
// POST /api/plan/calculate.
func (h *Handler) calculatePlan(c *gin.Context) {
	req, plan, ok := h.bindPlanRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, planResponse{Profile: req.Profile, Plan: plan})
}

// analyzePlan returns the numbers plus advisory text. The advice never
// affects the numbers and a failed advice call falls back to a fixed sentence.
// POST /api/plan/analyze.
func (h *Handler) analyzePlan(c *gin.Context) {
	req, plan, ok := h.bindPlanRequest(c)
	if !ok {
		return
	}

	st, _ := h.store.View()
	advice, fromAI := planAdvice(context.WithoutCancel(c.Request.Context()), h.ai, st.Settings.AIConfig, req.Profile, plan.TDEE)

	c.JSON(http.StatusOK, planResponse{
		Profile:      req.Profile,
		Plan:         plan,
		Advice:       advice,
		AdviceFromAI: fromAI,
	})
}

// confirmPlan recomputes the plan and writes its recommended calories as the
// new daily target.
// POST /api/plan/confirm.
func (h *Handler) confirmPlan(c *gin.Context) {
	req, plan, ok := h.bindPlanRequest(c)
	if !ok {
		return
	}
	if err := h.store.SetTargetCalories(c, plan.RecommendedCalories); err != nil {
		respondError(c, err)
		return
	}
	st, _ := h.store.View()
	c.JSON(http.StatusOK, gin.H{
		"profile":  req.Profile,
		"plan":     plan,
		"settings": toSettingsResponse(st.Settings),
	})
}
