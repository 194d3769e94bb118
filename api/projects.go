package api

import (
	"context"
	"net/http"
)

// ProjectsService manages projects.
type ProjectsService struct{ service }

// ProjectUpdate patches a project. Nil fields are left unchanged.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// List returns every project. The backend creates "default" on first use.
func (s *ProjectsService) List(ctx context.Context) ([]Project, error) {
	return call[[]Project](ctx, s.service, s.get("/api/projects/", nil))
}

// Get returns one project.
func (s *ProjectsService) Get(ctx context.Context, id string) (Project, error) {
	return call[Project](ctx, s.service, s.get("/api/projects/"+escape(id), nil))
}

// Create adds a project.
func (s *ProjectsService) Create(ctx context.Context, name, description string) (Project, error) {
	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}
	return call[Project](ctx, s.service, s.send(http.MethodPost, "/api/projects/", body))
}

// Update patches a project.
func (s *ProjectsService) Update(ctx context.Context, id string, u ProjectUpdate) (Project, error) {
	return call[Project](ctx, s.service, s.send(http.MethodPatch, "/api/projects/"+escape(id), u))
}

// Delete removes a project.
func (s *ProjectsService) Delete(ctx context.Context, id string) (DeleteResponse, error) {
	return call[DeleteResponse](ctx, s.service, s.send(http.MethodDelete, "/api/projects/"+escape(id), nil))
}
