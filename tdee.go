package main

import (
	"math"
	"time"
)

// activityMultipliers maps activity level strings to their TDEE multiplier.
// This is the single source of truth for valid activity levels; the profile
// validator's oneof list must match it.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

const (
	// kcalPerKG is the energy content of 1 kg of body fat.
	kcalPerKG = 7700
	// minDailyCalories is the hard floor for a recommended daily budget.
	minDailyCalories = 1200
	// defaultWeeklyLossKG is used when a plan request omits the rate.
	defaultWeeklyLossKG = 0.5
	// maxWeeklyLossKG is the top of the accepted weekly rate range.
	maxWeeklyLossKG = 2.0
	// maxPlanDays caps how far out a goal date may land.
	maxPlanDays = 3650
)

// profile is the body profile the planner works from. Metric units throughout.
type profile struct {
	Gender          string  `json:"gender"            validate:"required,oneof=male female"`
	AgeYears        int     `json:"age_years"         validate:"gt=0"`
	HeightCM        float64 `json:"height_cm"         validate:"gt=0"`
	CurrentWeightKG float64 `json:"current_weight_kg" validate:"gt=0"`
	Activity        string  `json:"activity"          validate:"required,oneof=sedentary light moderate active very_active"`
	TargetWeightKG  float64 `json:"target_weight_kg"  validate:"gt=0,ltfield=CurrentWeightKG"`
}

// weightPlan is the planner's output. EstimatedDate and DaysNeeded are nil in
// maintenance mode (weekly loss of 0).
type weightPlan struct {
	BMR                 float64   `json:"bmr"`
	TDEE                int       `json:"tdee"`
	WeightToLoseKG      float64   `json:"weight_to_lose_kg"`
	WeeklyLossKG        float64   `json:"weekly_loss_kg"`
	DailyDeficit        int       `json:"daily_deficit"`
	RecommendedCalories int       `json:"recommended_calories"`
	Maintenance         bool      `json:"maintenance"`
	DaysNeeded          *int      `json:"days_needed"`
	EstimatedDate       *DateOnly `json:"estimated_date"`
}

// computeBMR uses Mifflin-St Jeor: different constant for male vs female.
func computeBMR(p profile) float64 {
	bmr := 10*p.CurrentWeightKG + 6.25*p.HeightCM - 5*float64(p.AgeYears)
	if p.Gender == "male" {
		return bmr + 5
	}
	return bmr - 161
}

// computeTDEE validates p and returns BMR and TDEE (BMR × activity multiplier,
// rounded half-up).
func computeTDEE(p profile) (bmr float64, tdee int, err error) {
	if err := validateStruct(p); err != nil {
		return 0, 0, err
	}
	mult, found := activityMultipliers[p.Activity]
	if !found {
		return 0, 0, validationErrorf("activity must be one of: sedentary, light, moderate, active, very_active")
	}
	bmr = computeBMR(p)
	return bmr, roundHalfUp(bmr * mult), nil
}

// computePlan derives the daily budget and goal date for p at weeklyLossKG.
// today is the caller's wall-clock date; the estimate is today + daysNeeded.
func computePlan(p profile, weeklyLossKG float64, today time.Time) (weightPlan, error) {
	if math.IsNaN(weeklyLossKG) || weeklyLossKG < 0 || weeklyLossKG > maxWeeklyLossKG {
		return weightPlan{}, validationErrorf("weekly_loss_kg must be a number between 0 and %g", maxWeeklyLossKG)
	}
	bmr, tdee, err := computeTDEE(p)
	if err != nil {
		return weightPlan{}, err
	}

	deficit := roundHalfUp(weeklyLossKG * kcalPerKG / 7)
	plan := weightPlan{
		BMR:                 bmr,
		TDEE:                tdee,
		WeightToLoseKG:      p.CurrentWeightKG - p.TargetWeightKG,
		WeeklyLossKG:        weeklyLossKG,
		DailyDeficit:        deficit,
		RecommendedCalories: max(minDailyCalories, tdee-deficit),
	}

	if weeklyLossKG == 0 {
		plan.Maintenance = true
		return plan, nil
	}
	daysF := math.Ceil(plan.WeightToLoseKG / weeklyLossKG * 7)
	if daysF > maxPlanDays {
		return weightPlan{}, validationErrorf("weekly_loss_kg is too low: reaching the target would take more than %d days", maxPlanDays)
	}
	days := int(daysF)
	eta := DateOnly{today.AddDate(0, 0, days)}
	plan.DaysNeeded = &days
	plan.EstimatedDate = &eta
	return plan, nil
}
