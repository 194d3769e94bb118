package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/randalmurphal/autodev/apiclient"
	"github.com/randalmurphal/autodev/poll"
)

// DevelopmentsService manages AI development runs.
type DevelopmentsService struct{ service }

// List returns the developments of a project. An empty status lists all.
func (s *DevelopmentsService) List(ctx context.Context, projectID string, status DevelopmentStatus) ([]Development, error) {
	q := projectQuery(projectID)
	if status != "" {
		q.Set("status", string(status))
	}
	return call[[]Development](ctx, s.service, s.get("/api/developments/", q))
}

// Get returns one development.
func (s *DevelopmentsService) Get(ctx context.Context, id string) (Development, error) {
	return call[Development](ctx, s.service, s.get("/api/developments/"+escape(id), nil))
}

// Logs returns the agent log of a development.
func (s *DevelopmentsService) Logs(ctx context.Context, id string) ([]AgentLogEntry, error) {
	return call[[]AgentLogEntry](ctx, s.service, s.get("/api/developments/"+escape(id)+"/logs", nil))
}

// Start launches the agent pipeline for an approved requirement.
func (s *DevelopmentsService) Start(ctx context.Context, requirementID, projectID string) (StartDevelopmentResponse, error) {
	body := map[string]string{
		"requirement_id": requirementID,
		"project_id":     projectOrDefault(projectID),
	}
	return call[StartDevelopmentResponse](ctx, s.service, s.send(http.MethodPost, "/api/developments/start", body))
}

// GitHubStatus reports whether the backend can push to GitHub.
func (s *DevelopmentsService) GitHubStatus(ctx context.Context) (GitHubStatus, error) {
	return call[GitHubStatus](ctx, s.service, s.get("/api/developments/github/status", nil))
}

// CreatePR pushes the generated files and opens a pull request.
func (s *DevelopmentsService) CreatePR(ctx context.Context, id string) (CreatePRResponse, error) {
	return call[CreatePRResponse](ctx, s.service, s.send(http.MethodPost, "/api/developments/"+escape(id)+"/create-pr", nil))
}

// Download streams the ZIP archive of the generated files into w and
// returns the number of bytes written. It makes a single attempt.
func (s *DevelopmentsService) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := s.client.Raw(ctx, http.MethodGet, "/api/developments/"+escape(id)+"/download", nil, nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := apiclient.CodeUnknown
		if resp.StatusCode == http.StatusNotFound {
			code = apiclient.CodeNotFound
		}
		return 0, apiclient.NewError(fmt.Sprintf("download failed: %d", resp.StatusCode), code, resp.StatusCode, nil)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("write archive: %w", err)
	}
	return n, nil
}

// WaitSettled polls until the development reaches review, merged or failed.
// onUpdate, when non-nil, sees every successful probe.
func (s *DevelopmentsService) WaitSettled(ctx context.Context, id string, cfg poll.Config, onUpdate func(Development)) (Development, error) {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	dev, _, err := poll.Until(ctx, cfg, func(ctx context.Context) (Development, bool, error) {
		d, err := s.Get(ctx, id)
		if err != nil {
			return Development{}, false, err
		}
		if onUpdate != nil {
			onUpdate(d)
		}
		return d, d.Status.Settled(), nil
	})
	return dev, err
}
