package api

import (
	"context"
	"net/http"
	"time"

	"github.com/randalmurphal/autodev/apiclient"
	"github.com/randalmurphal/autodev/poll"
)

// RequirementsService manages requirement documents.
type RequirementsService struct{ service }

// List returns the requirements of a project, newest first.
func (s *RequirementsService) List(ctx context.Context, projectID string) ([]Requirement, error) {
	return call[[]Requirement](ctx, s.service, s.get("/api/requirements/", projectQuery(projectID)))
}

// Get returns one requirement.
func (s *RequirementsService) Get(ctx context.Context, id string) (Requirement, error) {
	return call[Requirement](ctx, s.service, s.get("/api/requirements/"+escape(id), nil))
}

// Generate starts asynchronous generation from the given issues. The
// returned RequirementID is reserved before the document exists.
func (s *RequirementsService) Generate(ctx context.Context, issueIDs []string, projectID string) (GenerateResponse, error) {
	body := map[string]any{
		"issue_ids":  issueIDs,
		"project_id": projectOrDefault(projectID),
	}
	return call[GenerateResponse](ctx, s.service, s.send(http.MethodPost, "/api/requirements/generate", body))
}

// Update patches the markdown or status of a requirement.
func (s *RequirementsService) Update(ctx context.Context, id string, u RequirementUpdate) (Requirement, error) {
	return call[Requirement](ctx, s.service, s.send(http.MethodPatch, "/api/requirements/"+escape(id), u))
}

// Approve marks a requirement approved.
func (s *RequirementsService) Approve(ctx context.Context, id string) (Requirement, error) {
	return call[Requirement](ctx, s.service, s.send(http.MethodPost, "/api/requirements/"+escape(id)+"/approve", nil))
}

// CreateGitHubIssue files the requirement as a GitHub issue.
func (s *RequirementsService) CreateGitHubIssue(ctx context.Context, id string) (GitHubIssueResponse, error) {
	path := "/api/requirements/" + escape(id) + "/create-github-issue"
	return call[GitHubIssueResponse](ctx, s.service, s.send(http.MethodPost, path, nil))
}

// Delete removes a requirement.
func (s *RequirementsService) Delete(ctx context.Context, id string) (DeleteResponse, error) {
	return call[DeleteResponse](ctx, s.service, s.send(http.MethodDelete, "/api/requirements/"+escape(id), nil))
}

// WaitGenerated polls until the requirement with id exists. NOT_FOUND is
// the expected answer while generation runs and is not counted as a
// failure; other errors are tolerated per cfg.
func (s *RequirementsService) WaitGenerated(ctx context.Context, id string, cfg poll.Config) (Requirement, error) {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	req, _, err := poll.Until(ctx, cfg, func(ctx context.Context) (Requirement, bool, error) {
		r, err := s.Get(ctx, id)
		if apiclient.IsNotFound(err) {
			return Requirement{}, false, nil
		}
		if err != nil {
			return Requirement{}, false, err
		}
		return r, true, nil
	})
	return req, err
}
