// Package api exposes the backend's REST resources as typed services.
//
// Every JSON call goes through apiclient.Do and therefore shares its retry,
// timeout and error semantics. File upload and ZIP download are raw
// single-attempt requests.
//
// Basic usage:
//
//	c, err := apiclient.New("http://localhost:8000")
//	if err != nil {
//	    return err
//	}
//	a := api.New(c)
//	issues, err := a.Issues.List(ctx, "default", api.IssueFilter{Status: api.IssueNew})
package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/randalmurphal/autodev/apiclient"
)

// API groups the resource services.
type API struct {
	Projects     *ProjectsService
	Sources      *SourcesService
	Issues       *IssuesService
	Requirements *RequirementsService
	Developments *DevelopmentsService
	Sync         *SyncService
	Stats        *StatsService
}

// New builds an API over c.
func New(c *apiclient.Client) *API {
	s := service{client: c}
	a := &API{
		Projects:     &ProjectsService{s},
		Sources:      &SourcesService{s},
		Issues:       &IssuesService{s},
		Requirements: &RequirementsService{s},
		Developments: &DevelopmentsService{s},
		Sync:         &SyncService{s},
	}
	a.Stats = &StatsService{api: a}
	return a
}

type service struct {
	client *apiclient.Client
}

func (s service) get(path string, query url.Values) apiclient.Request {
	return apiclient.Request{Path: path, Method: http.MethodGet, Query: query}
}

func (s service) send(method, path string, body any) apiclient.Request {
	return apiclient.Request{Path: path, Method: method, Body: body}
}

// call is a thin alias that keeps service methods on one line.
func call[T any](ctx context.Context, s service, req apiclient.Request) (T, error) {
	return apiclient.Do[T](ctx, s.client, req)
}

func projectQuery(projectID string) url.Values {
	return url.Values{"project_id": {projectOrDefault(projectID)}}
}

func escape(id string) string {
	return url.PathEscape(id)
}
