package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// dateParam validates the :date path param. Writes a 400 and returns false
// when it is not a valid YYYY-MM-DD.
func dateParam(c *gin.Context) (string, bool) {
	date := c.Param("date")
	if _, err := parseDateKey(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// buildDailySummary derives the day's balance from a snapshot. Missing
// records are reported as empty, not created.
func buildDailySummary(st *appState, date string) dailySummary {
	totals := dailyTotals(st, date)
	summary := dailySummary{
		Date:           date,
		TargetCalories: st.Settings.TargetCalories,
		Intake:         totals.Intake,
		Burned:         totals.Burned,
		Remaining:      totals.Remaining,
		OverBudget:     totals.Remaining < 0,
		Meals:          []entry{},
		Exercises:      []entry{},
	}
	if r, ok := st.Records[date]; ok {
		summary.HasRecord = true
		summary.WeightKG = r.Weight
		summary.WaterML = r.Water
		summary.Meals = r.Meals
		summary.Exercises = r.Exercises
	}
	return summary
}

// respondMutation finishes a mutating request with the refreshed summary of
// date. Errors go through respondError; after a save failure the mutation is
// still live in memory and shows up on the next read.
func (h *Handler) respondMutation(c *gin.Context, date string, status int, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	st, _ := h.store.View()
	c.JSON(status, buildDailySummary(&st, date))
}

// getDailySummary returns entries and computed totals for a given date.
// GET /api/daily?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getDailySummary(c *gin.Context) {
	date := c.DefaultQuery("date", h.today())

	// Validate date format before reading; an invalid key would never match a record.
	if _, err := parseDateKey(date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	st, _ := h.store.View()
	c.JSON(http.StatusOK, buildDailySummary(&st, date))
}

// createRecord explicitly creates the record for a date if it does not exist.
// POST /api/records/:date. Returns the record; creation is saved with the next mutation.
func (h *Handler) createRecord(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	_, existed := h.store.Record(date)
	rec := h.store.GetOrCreateRecord(date)

	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	c.JSON(status, rec)
}

// kindParam validates the :kind path param (meals or exercises).
func kindParam(c *gin.Context) (entryKind, bool) {
	kind := entryKind(c.Param("kind"))
	if !kind.valid() {
		apiError(c, http.StatusBadRequest, "kind must be one of: meals, exercises")
		return "", false
	}
	return kind, true
}

// addEntry appends a meal or exercise to the day's list.
// POST /api/records/:date/entries/:kind. Body: {"name": "Oatmeal", "calories": 300}.
func (h *Handler) addEntry(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var body createEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body: calories must be an integer")
		return
	}
	if body.Calories == nil {
		apiError(c, http.StatusBadRequest, "calories is required")
		return
	}

	err := h.store.AddEntry(c, date, kind, entry{Name: body.Name, Calories: *body.Calories})
	h.respondMutation(c, date, http.StatusCreated, err)
}

// removeEntry deletes the entry at a position; later entries shift down.
// DELETE /api/records/:date/entries/:kind/:index.
func (h *Handler) removeEntry(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		apiError(c, http.StatusBadRequest, "index must be an integer")
		return
	}

	err = h.store.RemoveEntry(c, date, kind, index)
	h.respondMutation(c, date, http.StatusOK, err)
}

// getRollUp returns chart-ready week, month, or year series ending at as_of.
// GET /api/analytics/rollup?range=week|month|year&as_of=YYYY-MM-DD (defaults: week, today).
// Series are cached per store revision, so any mutation invalidates them.
func (h *Handler) getRollUp(c *gin.Context) {
	rng, err := parseRollUpRange(c.DefaultQuery("range", string(rangeWeek)))
	if err != nil {
		respondError(c, err)
		return
	}
	asOfStr := c.DefaultQuery("as_of", h.today())
	asOf, err := parseDateKey(asOfStr)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid as_of, expected YYYY-MM-DD")
		return
	}

	st, rev := h.store.View()
	key := fmt.Sprintf("%d/%s/%s", rev, rng, asOfStr)
	if cached, found := h.seriesCache.Get(key); found {
		c.JSON(http.StatusOK, cached)
		return
	}

	out := rollUp(&st, rng, asOf)
	h.seriesCache.Set(key, out, cache.DefaultExpiration)
	c.JSON(http.StatusOK, out)
}
