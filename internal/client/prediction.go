package client

import (
	"context"
	"net/http"
)

const (
	// StatusOptimal is reported when efficiency is above OptimalThreshold
	StatusOptimal = "Optimal"
	// StatusActionRequired is reported otherwise
	StatusActionRequired = "Action Required"

	// OptimalThreshold is the efficiency above which a line is optimal
	OptimalThreshold = 85.0
)

// Prediction is the backend's production forecast
type Prediction struct {
	Efficiency          float64 `json:"efficiency"`
	DowntimeProbability float64 `json:"downtime_probability"`
	Status              string  `json:"status"`
	Recommendation      string  `json:"recommendation"`
}

// Optimal reports whether efficiency is above the optimal threshold
func (p *Prediction) Optimal() bool {
	return p.Efficiency > OptimalThreshold
}

// Predict fetches the current prediction. Credential handling is entirely
// the pipeline's job.
func (c *Client) Predict(ctx context.Context) (*Prediction, error) {
	var p Prediction
	if err := c.Do(ctx, http.MethodGet, "predict/", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
