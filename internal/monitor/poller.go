// Package monitor polls the prediction endpoint and keeps a short efficiency
// history for live display.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prodpro/prodpro/internal/client"
	"github.com/prodpro/prodpro/internal/pkg/metrics"
)

const (
	// DefaultInterval is how often the dashboard refetches
	DefaultInterval = 10 * time.Second
	// HistorySize is how many efficiency points are kept
	HistorySize = 10
)

// Predictor fetches the current prediction; *client.Client implements it
type Predictor interface {
	Predict(ctx context.Context) (*client.Prediction, error)
}

// Point is one efficiency sample
type Point struct {
	Time       time.Time
	Efficiency float64
}

// History is a bounded, oldest-first list of points
type History struct {
	mu     sync.Mutex
	limit  int
	points []Point
}

// NewHistory keeps at most limit points
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = HistorySize
	}
	return &History{limit: limit}
}

// Add appends a point, dropping the oldest beyond the limit
func (h *History) Add(p Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.points = append(h.points, p)
	if over := len(h.points) - h.limit; over > 0 {
		h.points = append(h.points[:0:0], h.points[over:]...)
	}
}

// Points returns a copy of the history
func (h *History) Points() []Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Point, len(h.points))
	copy(out, h.points)
	return out
}

// Update is delivered after every fetch. Exactly one of Prediction and Err is set.
type Update struct {
	Prediction *client.Prediction
	Err        error
	History    []Point
}

// Poller fetches a prediction immediately and then every interval
type Poller struct {
	predictor Predictor
	interval  time.Duration
	history   *History
	now       func() time.Time
	log       *slog.Logger
}

// NewPoller creates a poller; a non-positive interval means DefaultInterval
func NewPoller(predictor Predictor, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		predictor: predictor,
		interval:  interval,
		history:   NewHistory(HistorySize),
		now:       time.Now,
		log:       slog.Default().With(slog.String("component", "monitor")),
	}
}

// History returns the poller's efficiency history
func (p *Poller) History() *History {
	return p.history
}

// Run polls until ctx is done or the session ends. Fetch errors are passed to
// onUpdate and polling continues; a session-ended error stops polling and is
// returned.
func (p *Poller) Run(ctx context.Context, onUpdate func(Update)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("starting prediction polling", slog.Duration("interval", p.interval))

	for {
		if err := p.poll(ctx, onUpdate); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			p.log.Info("stopping prediction polling")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, onUpdate func(Update)) error {
	prediction, err := p.predictor.Predict(ctx)
	if err != nil {
		metrics.RecordPoll(0, 0, err)

		if errors.Is(err, client.ErrSessionEnded) {
			p.log.Info("session ended, stopping prediction polling")
			onUpdate(Update{Err: err, History: p.history.Points()})
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warn("failed to fetch prediction", slog.String("error", err.Error()))
		onUpdate(Update{Err: err, History: p.history.Points()})
		return nil
	}

	metrics.RecordPoll(prediction.Efficiency, prediction.DowntimeProbability, nil)
	p.history.Add(Point{Time: p.now(), Efficiency: prediction.Efficiency})
	onUpdate(Update{Prediction: prediction, History: p.history.Points()})
	return nil
}
