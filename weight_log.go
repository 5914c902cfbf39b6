package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setWeight records the day's weight, replacing any earlier value.
// PUT /api/records/:date/weight. Body: { "weight_kg": 72.4 }.
func (h *Handler) setWeight(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}

	var body setWeightRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.WeightKG == nil {
		apiError(c, http.StatusBadRequest, "weight_kg is required")
		return
	}

	err := h.store.SetWeight(c, date, *body.WeightKG)
	h.respondMutation(c, date, http.StatusOK, err)
}

// addWater adds to the day's water total. Only positive amounts are accepted;
// use resetWater to go back to zero.
// POST /api/records/:date/water. Body: { "ml": 250 }.
func (h *Handler) addWater(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}

	var body addWaterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body: ml must be an integer")
		return
	}
	if body.ML == nil {
		apiError(c, http.StatusBadRequest, "ml is required")
		return
	}

	err := h.store.AddWater(c, date, *body.ML)
	h.respondMutation(c, date, http.StatusOK, err)
}

// resetWater sets the day's water total back to 0.
// DELETE /api/records/:date/water.
func (h *Handler) resetWater(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}

	err := h.store.ResetWater(c, date)
	h.respondMutation(c, date, http.StatusOK, err)
}
