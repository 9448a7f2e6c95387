package availability

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DayPlan bundles the per-technician requests for one date, in the order they are tried.
type DayPlan struct {
	Date     time.Time
	Requests []Request
}

// DayResult is the day-level answer for one date.
// TechnicianID names the first technician found available.
type DayResult struct {
	Date         time.Time
	Available    bool
	TechnicianID string
}

// Days evaluates each plan concurrently with at most workers goroutines. Each unit
// writes only its own result slot, and results keep the order of plans.
func (c *Calculator) Days(ctx context.Context, plans []DayPlan, workers int) ([]DayResult, error) {
	results := make([]DayResult, len(plans))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, plan := range plans {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result := DayResult{Date: plan.Date}
			for _, req := range plan.Requests {
				ok, err := c.DayAvailable(req)
				if err != nil {
					return err
				}
				if ok {
					result.Available = true
					result.TechnicianID = req.TechnicianID
					break
				}
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
