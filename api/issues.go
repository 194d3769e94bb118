package api

import (
	"context"
	"net/http"
	"net/url"
)

// IssuesService manages extracted issues.
type IssuesService struct{ service }

// List returns the issues of a project, optionally filtered.
func (s *IssuesService) List(ctx context.Context, projectID string, f IssueFilter) ([]Issue, error) {
	q := projectQuery(projectID)
	if f.SourceID != "" {
		q.Set("source_id", f.SourceID)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.PainLevel != "" {
		q.Set("pain_level", string(f.PainLevel))
	}
	return call[[]Issue](ctx, s.service, s.get("/api/issues/", q))
}

// Get returns one issue.
func (s *IssuesService) Get(ctx context.Context, id string) (Issue, error) {
	return call[Issue](ctx, s.service, s.get("/api/issues/"+escape(id), nil))
}

// Extract starts asynchronous issue extraction from a source. When content
// is empty the backend reads the source's stored messages.
func (s *IssuesService) Extract(ctx context.Context, sourceID, content, projectID string) (ExtractResponse, error) {
	body := map[string]any{
		"source_id":  sourceID,
		"project_id": projectOrDefault(projectID),
	}
	if content != "" {
		body["content"] = content
	}
	return call[ExtractResponse](ctx, s.service, s.send(http.MethodPost, "/api/issues/extract", body))
}

// UpdateStatus moves an issue to status.
func (s *IssuesService) UpdateStatus(ctx context.Context, id string, status IssueStatus) (Issue, error) {
	req := s.send(http.MethodPatch, "/api/issues/"+escape(id)+"/status", nil)
	req.Query = url.Values{"status": {string(status)}}
	return call[Issue](ctx, s.service, req)
}

// Select marks an issue for requirement generation.
func (s *IssuesService) Select(ctx context.Context, id string) (Issue, error) {
	return call[Issue](ctx, s.service, s.send(http.MethodPost, "/api/issues/"+escape(id)+"/select", nil))
}

// Delete removes an issue.
func (s *IssuesService) Delete(ctx context.Context, id string) (DeleteResponse, error) {
	return call[DeleteResponse](ctx, s.service, s.send(http.MethodDelete, "/api/issues/"+escape(id), nil))
}
