package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/randalmurphal/autodev/apiclient"
)

// SourcesService manages conversation sources.
type SourcesService struct{ service }

// UploadRequest describes a log file to upload.
type UploadRequest struct {
	Filename  string
	Reader    io.Reader
	Label     string
	ProjectID string
}

// List returns the sources of a project.
func (s *SourcesService) List(ctx context.Context, projectID string) ([]Source, error) {
	return call[[]Source](ctx, s.service, s.get("/api/sources/", projectQuery(projectID)))
}

// Get returns one source.
func (s *SourcesService) Get(ctx context.Context, id string) (Source, error) {
	return call[Source](ctx, s.service, s.get("/api/sources/"+escape(id), nil))
}

// Upload posts a file as multipart/form-data. It makes a single attempt.
// Any non-2xx status yields an UNKNOWN_ERROR "upload failed: <status>";
// the response body is not inspected.
func (s *SourcesService) Upload(ctx context.Context, req UploadRequest) (Source, error) {
	if req.Reader == nil {
		return Source{}, apiclient.NewError("upload: no file content", apiclient.CodeValidation, 0, nil)
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, req))
	}()

	header := http.Header{}
	header.Set(apiclient.HeaderContentType, mw.FormDataContentType())

	resp, err := s.client.Raw(ctx, http.MethodPost, "/api/sources/upload", nil, pr, header)
	if err != nil {
		return Source{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Source{}, apiclient.NewError(
			fmt.Sprintf("upload failed: %d", resp.StatusCode), apiclient.CodeUnknown, resp.StatusCode, nil)
	}

	var src Source
	if err := json.NewDecoder(resp.Body).Decode(&src); err != nil {
		apiErr := apiclient.NewError("decode uploaded source", apiclient.CodeUnknown, resp.StatusCode, nil)
		apiErr.Err = err
		return Source{}, apiErr
	}
	return src, nil
}

func writeUploadForm(mw *multipart.Writer, req UploadRequest) error {
	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Reader); err != nil {
		return err
	}
	if req.Label != "" {
		if err := mw.WriteField("label", req.Label); err != nil {
			return err
		}
	}
	if err := mw.WriteField("project_id", projectOrDefault(req.ProjectID)); err != nil {
		return err
	}
	return mw.Close()
}

// Delete removes a source.
func (s *SourcesService) Delete(ctx context.Context, id string) (DeleteResponse, error) {
	return call[DeleteResponse](ctx, s.service, s.send(http.MethodDelete, "/api/sources/"+escape(id), nil))
}

// ChatworkStatus reports whether Chatwork is configured on the backend.
func (s *SourcesService) ChatworkStatus(ctx context.Context) (ChatworkStatus, error) {
	return call[ChatworkStatus](ctx, s.service, s.get("/api/sources/chatwork/status", nil))
}

// ChatworkRooms lists rooms visible to the backend's Chatwork account.
func (s *SourcesService) ChatworkRooms(ctx context.Context) ([]ChatworkRoom, error) {
	resp, err := call[struct {
		Rooms []ChatworkRoom `json:"rooms"`
	}](ctx, s.service, s.get("/api/sources/chatwork/rooms", nil))
	if err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// ConnectChatwork registers a Chatwork room as a source.
func (s *SourcesService) ConnectChatwork(ctx context.Context, roomID, roomName, projectID string) (Source, error) {
	body := map[string]string{
		"room_id":    roomID,
		"room_name":  roomName,
		"project_id": projectOrDefault(projectID),
	}
	return call[Source](ctx, s.service, s.send(http.MethodPost, "/api/sources/chatwork", body))
}

// Messages returns the content of a source.
func (s *SourcesService) Messages(ctx context.Context, id string) (SourceMessages, error) {
	return call[SourceMessages](ctx, s.service, s.get("/api/sources/"+escape(id)+"/messages", nil))
}
