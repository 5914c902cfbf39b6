package main

import (
	"time"
)

// dateLayout is the canonical DateKey format used for record keys and query params.
const dateLayout = "2006-01-02"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// dateKeyOf returns the DateKey of t's calendar day in t's own location.
func dateKeyOf(t time.Time) string {
	return t.Format(dateLayout)
}

// parseDateKey validates a YYYY-MM-DD string and returns it as midnight UTC.
func parseDateKey(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

/* ─── Persisted state ────────────────────────────────────────────────── */

// entryKind selects which list of a dayRecord an entry belongs to. The values
// double as the :kind path segment of the records API.
type entryKind string

const (
	kindMeal     entryKind = "meals"
	kindExercise entryKind = "exercises"
)

func (k entryKind) valid() bool {
	return k == kindMeal || k == kindExercise
}

// entry is a named calorie-valued item. For meals calories are intake, for
// exercises they are energy burned (added back to the remaining budget).
type entry struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
}

// dayRecord holds everything logged for one calendar day. Weight is nil when
// not logged; list order is insertion order and doubles as the delete index.
type dayRecord struct {
	Weight    *float64 `json:"weight"`
	Water     int      `json:"water"`
	Meals     []entry  `json:"meals"`
	Exercises []entry  `json:"exercises"`
}

func newDayRecord() *dayRecord {
	return &dayRecord{Meals: []entry{}, Exercises: []entry{}}
}

func (r *dayRecord) list(kind entryKind) *[]entry {
	if kind == kindExercise {
		return &r.Exercises
	}
	return &r.Meals
}

func (r *dayRecord) clone() dayRecord {
	out := dayRecord{
		Water:     r.Water,
		Meals:     append([]entry{}, r.Meals...),
		Exercises: append([]entry{}, r.Exercises...),
	}
	if r.Weight != nil {
		w := *r.Weight
		out.Weight = &w
	}
	return out
}

// aiConfig is the user's OpenAI-compatible endpoint configuration.
// BaseURL never carries a trailing slash.
type aiConfig struct {
	APIKey  string `json:"apiKey"  validate:"required"`
	BaseURL string `json:"baseUrl" validate:"required,url"`
	Model   string `json:"model"   validate:"required"`
}

type appSettings struct {
	TargetCalories int       `json:"targetCalories"`
	AIConfig       *aiConfig `json:"aiConfig"`
}

// appState is the root of everything persisted, stored as one JSON blob.
type appState struct {
	Settings appSettings           `json:"settings"`
	Records  map[string]*dayRecord `json:"records"`
}

const defaultTargetCalories = 1200

func defaultAppState() appState {
	return appState{
		Settings: appSettings{TargetCalories: defaultTargetCalories},
		Records:  map[string]*dayRecord{},
	}
}

// clone deep-copies the state so readers never share memory with the store.
func (s appState) clone() appState {
	out := appState{
		Settings: appSettings{TargetCalories: s.Settings.TargetCalories},
		Records:  make(map[string]*dayRecord, len(s.Records)),
	}
	if s.Settings.AIConfig != nil {
		cfg := *s.Settings.AIConfig
		out.Settings.AIConfig = &cfg
	}
	for k, r := range s.Records {
		c := r.clone()
		out.Records[k] = &c
	}
	return out
}

/* ─── API shapes ─────────────────────────────────────────────────────── */

// dailySummary is the response shape for GET /api/daily and for every
// mutating records endpoint (the refreshed view after a save).
type dailySummary struct {
	Date           string   `json:"date"`
	TargetCalories int      `json:"target_calories"`
	Intake         int      `json:"intake"`
	Burned         int      `json:"burned"`
	Remaining      int      `json:"remaining"`
	OverBudget     bool     `json:"over_budget"`
	WeightKG       *float64 `json:"weight_kg"`
	WaterML        int      `json:"water_ml"`
	Meals          []entry  `json:"meals"`
	Exercises      []entry  `json:"exercises"`
	HasRecord      bool     `json:"has_record"`
}

// createEntryRequest is the request body for POST /api/records/:date/entries/:kind.
// A fractional or non-numeric calories value fails binding.
type createEntryRequest struct {
	Name     string `json:"name"`
	Calories *int   `json:"calories"`
}

type setWeightRequest struct {
	WeightKG *float64 `json:"weight_kg"`
}

type addWaterRequest struct {
	ML *int `json:"ml"`
}

type setTargetCaloriesRequest struct {
	TargetCalories *int `json:"target_calories"`
}

type setAIConfigRequest struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// settingsResponse is GET /api/settings. The API key is masked.
type settingsResponse struct {
	TargetCalories int               `json:"target_calories"`
	AIConfig       *aiConfigResponse `json:"ai_config"`
}

type aiConfigResponse struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}
