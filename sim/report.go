package sim

import (
	"time"

	"github.com/covops/capturenet/protocol"
)

// SiteResult is one site's final state as reported during validation.
type SiteResult struct {
	Site      protocol.SiteID                       `json:"site"`
	Count     int                                   `json:"count"`
	Fragments map[protocol.SiteID]protocol.Fragment `json:"fragments"`
	Complete  bool                                  `json:"complete"`
}

// RunReport is the outcome of one simulation run.
type RunReport struct {
	RunID      string                `json:"run_id"`
	Sites      int                   `json:"sites"`
	Order      protocol.CaptureOrder `json:"order"`
	Results    []SiteResult          `json:"results"`
	Complete   bool                  `json:"complete"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Duration returns the wall-clock time the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Result returns the result for the given site, or nil.
func (r *RunReport) Result(id protocol.SiteID) *SiteResult {
	for i := range r.Results {
		if r.Results[i].Site == id {
			return &r.Results[i]
		}
	}
	return nil
}
