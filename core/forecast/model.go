package forecast

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientHistory is returned when the training series is too short
// to fit a model.
var ErrInsufficientHistory = errors.New("forecast: insufficient history")

// Model turns a historical load series into future samples. Implementations
// are interchangeable; the responder treats the model as a black box.
type Model interface {
	// Fit trains on a timestamp-aligned series.
	Fit(times []time.Time, values []float64) error
	// Predict returns n samples starting at `start`, spaced by `interval`.
	Predict(start time.Time, n int, interval time.Duration) []float64
}

// SeasonalModel forecasts household load as a linear trend plus a
// time-of-day profile. The profile is the per-bucket mean of the detrended
// history; buckets partition the day at the model's resolution.
type SeasonalModel struct {
	bucket   time.Duration
	alpha    float64
	beta     float64
	origin   time.Time
	seasonal []float64
}

// NewSeasonalModel creates a model with the given time-of-day bucket width.
// The width must divide a day evenly; 10 minutes is a sensible default.
func NewSeasonalModel(bucket time.Duration) *SeasonalModel {
	if bucket <= 0 || 24*time.Hour%bucket != 0 {
		bucket = 10 * time.Minute
	}
	return &SeasonalModel{bucket: bucket}
}

func (m *SeasonalModel) bucketIndex(t time.Time) int {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return int(t.Sub(midnight) / m.bucket)
}

// Fit estimates the trend by least squares and the seasonal profile from
// the residuals. Buckets with no samples inherit the overall residual mean.
func (m *SeasonalModel) Fit(times []time.Time, values []float64) error {
	if len(times) != len(values) || len(times) < 2 {
		return ErrInsufficientHistory
	}
	m.origin = times[0]

	xs := make([]float64, len(times))
	for i, t := range times {
		xs[i] = t.Sub(m.origin).Hours()
	}
	m.alpha, m.beta = stat.LinearRegression(xs, values, nil, false)

	buckets := int(24 * time.Hour / m.bucket)
	sums := make([]float64, buckets)
	counts := make([]float64, buckets)
	var residualSum float64
	for i, t := range times {
		r := values[i] - (m.alpha + m.beta*xs[i])
		b := m.bucketIndex(t)
		sums[b] += r
		counts[b]++
		residualSum += r
	}
	overall := residualSum / float64(len(times))

	m.seasonal = make([]float64, buckets)
	for b := range m.seasonal {
		if counts[b] > 0 {
			m.seasonal[b] = sums[b] / counts[b]
		} else {
			m.seasonal[b] = overall
		}
	}
	return nil
}

// Predict evaluates trend plus profile at each requested instant.
func (m *SeasonalModel) Predict(start time.Time, n int, interval time.Duration) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := start.Add(time.Duration(i) * interval)
		trend := m.alpha + m.beta*t.Sub(m.origin).Hours()
		out[i] = trend + m.seasonal[m.bucketIndex(t)]
	}
	return out
}
