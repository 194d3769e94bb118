package api

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// StatsService computes dashboard counters from the list endpoints.
type StatsService struct {
	api *API
}

// Get lists sources, issues, requirements and developments concurrently.
// The first failure cancels the other calls and is returned as is.
func (s *StatsService) Get(ctx context.Context, projectID string) (DashboardStats, error) {
	var (
		sources      []Source
		issues       []Issue
		requirements []Requirement
		developments []Development
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sources, err = s.api.Sources.List(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		issues, err = s.api.Issues.List(ctx, projectID, IssueFilter{})
		return err
	})
	g.Go(func() (err error) {
		requirements, err = s.api.Requirements.List(ctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		developments, err = s.api.Developments.List(ctx, projectID, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}

	completed := 0
	for _, r := range requirements {
		if r.Status == RequirementApproved {
			completed++
		}
	}
	return DashboardStats{
		Sources:      len(sources),
		Issues:       len(issues),
		Requirements: len(requirements),
		Completed:    completed,
		Developments: len(developments),
	}, nil
}
