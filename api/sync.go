package api

import (
	"context"
	"net/http"
)

// SyncService controls the backend's Chatwork poller.
type SyncService struct{ service }

// Status returns the poller state.
func (s *SyncService) Status(ctx context.Context) (SyncStatus, error) {
	return call[SyncStatus](ctx, s.service, s.get("/api/polling/status", nil))
}

// Start starts the poller. Requires a Chatwork token on the backend.
func (s *SyncService) Start(ctx context.Context) (SyncControlResponse, error) {
	return call[SyncControlResponse](ctx, s.service, s.send(http.MethodPost, "/api/polling/start", nil))
}

// Stop stops the poller.
func (s *SyncService) Stop(ctx context.Context) (SyncControlResponse, error) {
	return call[SyncControlResponse](ctx, s.service, s.send(http.MethodPost, "/api/polling/stop", nil))
}

// Configure sets the poll interval. The backend rejects values below 30.
func (s *SyncService) Configure(ctx context.Context, intervalSeconds int) (SyncControlResponse, error) {
	body := map[string]int{"interval_seconds": intervalSeconds}
	return call[SyncControlResponse](ctx, s.service, s.send(http.MethodPost, "/api/polling/config", body))
}

// Now syncs one source immediately, or every Chatwork source when
// sourceID is empty.
func (s *SyncService) Now(ctx context.Context, sourceID string) (SyncNowResponse, error) {
	body := map[string]any{"source_id": nil}
	if sourceID != "" {
		body["source_id"] = sourceID
	}
	return call[SyncNowResponse](ctx, s.service, s.send(http.MethodPost, "/api/polling/sync", body))
}

// SourceStatuses returns sync progress for every Chatwork source.
func (s *SyncService) SourceStatuses(ctx context.Context) ([]SourceSyncStatus, error) {
	resp, err := call[struct {
		Sources []SourceSyncStatus `json:"sources"`
	}](ctx, s.service, s.get("/api/polling/sync-status", nil))
	if err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// SourceStatus returns sync progress for one source.
func (s *SyncService) SourceStatus(ctx context.Context, sourceID string) (SourceSyncStatus, error) {
	return call[SourceSyncStatus](ctx, s.service, s.get("/api/polling/sync-status/"+escape(sourceID), nil))
}
