package main

import (
	"fmt"
	"math"
	"time"
)

// rollUpRange selects the bucketing of a roll-up.
type rollUpRange string

const (
	rangeWeek  rollUpRange = "week"
	rangeMonth rollUpRange = "month"
	rangeYear  rollUpRange = "year"
)

func parseRollUpRange(s string) (rollUpRange, error) {
	switch r := rollUpRange(s); r {
	case rangeWeek, rangeMonth, rangeYear:
		return r, nil
	}
	return "", validationErrorf("range must be one of: week, month, year")
}

// dailyTotalsResult is the calorie balance of one day. Remaining is always
// derived, never stored.
type dailyTotalsResult struct {
	Intake    int `json:"intake"`
	Burned    int `json:"burned"`
	Remaining int `json:"remaining"`
}

// series is chart-ready data: every slice is parallel to Labels. A nil
// weight is a gap, not a zero reading.
type series struct {
	Range  rollUpRange `json:"range"`
	AsOf   string      `json:"as_of"`
	Labels []string    `json:"labels"`
	Weight []*float64  `json:"weight"`
	Water  []int       `json:"water"`
	Intake []int       `json:"intake"`
	Burned []int       `json:"burned"`
}

func sumCalories(entries []entry) int {
	total := 0
	for _, e := range entries {
		total += e.Calories
	}
	return total
}

// dailyTotals computes intake, burned, and remaining for date. A missing
// record counts as empty: remaining equals the target.
func dailyTotals(st *appState, date string) dailyTotalsResult {
	var intake, burned int
	if r, ok := st.Records[date]; ok {
		intake = sumCalories(r.Meals)
		burned = sumCalories(r.Exercises)
	}
	return dailyTotalsResult{
		Intake:    intake,
		Burned:    burned,
		Remaining: st.Settings.TargetCalories - intake + burned,
	}
}

// rollUp buckets the stored records ending at asOf's calendar day (week,
// month) or calendar month (year), oldest bucket first.
func rollUp(st *appState, rng rollUpRange, asOf time.Time) series {
	switch rng {
	case rangeYear:
		return rollUpYear(st, asOf)
	case rangeMonth:
		return rollUpDays(st, rng, 30, asOf)
	default:
		return rollUpDays(st, rangeWeek, 7, asOf)
	}
}

func newSeries(rng rollUpRange, asOf time.Time, n int) series {
	return series{
		Range:  rng,
		AsOf:   dateKeyOf(asOf),
		Labels: make([]string, 0, n),
		Weight: make([]*float64, 0, n),
		Water:  make([]int, 0, n),
		Intake: make([]int, 0, n),
		Burned: make([]int, 0, n),
	}
}

// rollUpDays builds one bucket per day over [asOf-(days-1), asOf].
func rollUpDays(st *appState, rng rollUpRange, days int, asOf time.Time) series {
	out := newSeries(rng, asOf, days)
	for i := days - 1; i >= 0; i-- {
		d := asOf.AddDate(0, 0, -i)
		out.Labels = append(out.Labels, d.Format("01-02"))

		r, ok := st.Records[dateKeyOf(d)]
		if !ok {
			out.Weight = append(out.Weight, nil)
			out.Water = append(out.Water, 0)
			out.Intake = append(out.Intake, 0)
			out.Burned = append(out.Burned, 0)
			continue
		}
		var w *float64
		if r.Weight != nil {
			v := *r.Weight
			w = &v
		}
		out.Weight = append(out.Weight, w)
		out.Water = append(out.Water, r.Water)
		out.Intake = append(out.Intake, sumCalories(r.Meals))
		out.Burned = append(out.Burned, sumCalories(r.Exercises))
	}
	return out
}

// monthKey returns the YYYY-MM prefix of a DateKey.
func monthKey(dateKey string) string {
	return dateKey[:7]
}

// indexByMonth groups record keys by YYYY-MM in a single pass.
func indexByMonth(records map[string]*dayRecord) map[string][]string {
	idx := make(map[string][]string)
	for k := range records {
		if len(k) < 7 {
			continue
		}
		m := monthKey(k)
		idx[m] = append(idx[m], k)
	}
	return idx
}

// rollUpYear builds 12 monthly buckets ending at asOf's month. Water, intake,
// and burned are averaged over the days that have a record in the month, not
// over calendar days; weight over days with a logged weight.
func rollUpYear(st *appState, asOf time.Time) series {
	out := newSeries(rangeYear, asOf, 12)
	byMonth := indexByMonth(st.Records)
	first := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())

	for i := 11; i >= 0; i-- {
		m := first.AddDate(0, -i, 0)
		key := fmt.Sprintf("%04d-%02d", m.Year(), int(m.Month()))
		out.Labels = append(out.Labels, key)

		var (
			weightSum                      float64
			weightDays, recordedDays       int
			waterSum, intakeSum, burnedSum int
		)
		for _, dk := range byMonth[key] {
			r := st.Records[dk]
			if r.Weight != nil && *r.Weight > 0 {
				weightSum += *r.Weight
				weightDays++
			}
			waterSum += r.Water
			intakeSum += sumCalories(r.Meals)
			burnedSum += sumCalories(r.Exercises)
			recordedDays++
		}

		if weightDays > 0 {
			avg := math.Round(weightSum/float64(weightDays)*10) / 10
			out.Weight = append(out.Weight, &avg)
		} else {
			out.Weight = append(out.Weight, nil)
		}
		out.Water = append(out.Water, averageOver(waterSum, recordedDays))
		out.Intake = append(out.Intake, averageOver(intakeSum, recordedDays))
		out.Burned = append(out.Burned, averageOver(burnedSum, recordedDays))
	}
	return out
}

func averageOver(total, days int) int {
	if days == 0 {
		return 0
	}
	return roundHalfUp(float64(total) / float64(days))
}

// roundHalfUp rounds .5 toward +Inf, so -2.5 → -2 and 2.5 → 3.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
