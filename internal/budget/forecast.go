package budget

import (
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// MinForecastDays is the number of distinct days a forecast needs.
const MinForecastDays = 7

// trendDeadBand is the relative change treated as flat.
const trendDeadBand = 0.10

// Trend classifies the direction of recent spend.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Confidence grades a forecast by how much history backs it.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// DailyCost is the total spend on one calendar day.
type DailyCost struct {
	Date time.Time `json:"date"`
	Cost float64   `json:"cost"`
}

// Forecast is a linear projection of daily spend.
type Forecast struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	// DaysOfData is the number of distinct days with spend records.
	DaysOfData     int         `json:"days_of_data"`
	Slope          float64     `json:"slope"`
	Intercept      float64     `json:"intercept"`
	Projections    []DailyCost `json:"projections,omitempty"`
	ProjectedTotal float64     `json:"projected_total"`
	Trend          Trend       `json:"trend,omitempty"`
	Confidence     Confidence  `json:"confidence,omitempty"`
}

// DailyTotals aggregates cost per UTC calendar day, oldest first.
func DailyTotals(records []models.UsageRecord) []DailyCost {
	byDay := make(map[time.Time]float64)
	for _, r := range records {
		if r.Timestamp.IsZero() {
			continue
		}
		t := r.Timestamp.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] += r.CostUSD
	}

	out := make([]DailyCost, 0, len(byDay))
	for day, cost := range byDay {
		out = append(out, DailyCost{Date: day, Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// PredictCosts fits ordinary least squares over the day index (days since
// the first recorded day) and projects days forward from the last day.
func PredictCosts(records []models.UsageRecord, days int) Forecast {
	daily := DailyTotals(records)
	n := len(daily)
	if n < MinForecastDays {
		return Forecast{
			DaysOfData: n,
			Reason:     fmt.Sprintf("need at least %d days of data, have %d", MinForecastDays, n),
		}
	}

	first := daily[0].Date
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, d := range daily {
		xs[i] = d.Date.Sub(first).Hours() / 24
		ys[i] = d.Cost
	}
	slope, intercept := leastSquares(xs, ys)

	f := Forecast{
		Available:  true,
		DaysOfData: n,
		Slope:      slope,
		Intercept:  intercept,
		Trend:      classifyTrend(ys),
		Confidence: confidenceFor(n),
	}

	last := daily[n-1].Date
	lastX := xs[n-1]
	for k := 1; k <= days; k++ {
		v := intercept + slope*(lastX+float64(k))
		if v < 0 {
			v = 0
		}
		f.Projections = append(f.Projections, DailyCost{Date: last.AddDate(0, 0, k), Cost: v})
		f.ProjectedTotal += v
	}
	return f
}

// leastSquares returns the slope and intercept of the OLS line through the points.
func leastSquares(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - meanX
		sxy += dx * (ys[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, meanY
	}
	slope = sxy / sxx
	return slope, meanY - slope*meanX
}

// classifyTrend compares the mean of the most recent window with the window
// before it. The window is min(7, n/2) days.
func classifyTrend(ys []float64) Trend {
	n := len(ys)
	window := n / 2
	if window > 7 {
		window = 7
	}
	if window == 0 {
		return TrendStable
	}
	recent := mean(ys[n-window:])
	prior := mean(ys[n-2*window : n-window])

	if prior == 0 {
		if recent > 0 {
			return TrendRising
		}
		return TrendStable
	}
	change := (recent - prior) / prior
	switch {
	case change > trendDeadBand:
		return TrendRising
	case change < -trendDeadBand:
		return TrendFalling
	default:
		return TrendStable
	}
}

func confidenceFor(days int) Confidence {
	switch {
	case days < 14:
		return ConfidenceLow
	case days < 30:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
