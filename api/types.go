package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Time accepts the timestamp layouts the backend emits: RFC 3339 and
// naive ISO 8601 without a zone (interpreted as UTC).
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler. null and "" decode to zero.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// DefaultProjectID is used when no project is selected.
const DefaultProjectID = "default"

func projectOrDefault(id string) string {
	if id == "" {
		return DefaultProjectID
	}
	return id
}

// Project groups sources, issues, requirements and developments.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   Time   `json:"created_at"`
	UpdatedAt   Time   `json:"updated_at"`
}

// SourceType identifies where conversation logs come from.
type SourceType string

const (
	SourceChatworkRoom SourceType = "chatwork_room"
	SourceChatworkDM   SourceType = "chatwork_dm"
	SourceUploadedFile SourceType = "uploaded_file"
	SourceManualInput  SourceType = "manual_input"
)

// SourceFile describes an uploaded log file.
type SourceFile struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// SourceChatwork describes a connected Chatwork room.
type SourceChatwork struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	RoomType string `json:"room_type"`
}

// Source is an ingested conversation log.
type Source struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	Type         SourceType      `json:"type"`
	Label        string          `json:"label"`
	Color        string          `json:"color,omitempty"`
	File         *SourceFile     `json:"file,omitempty"`
	Chatwork     *SourceChatwork `json:"chatwork,omitempty"`
	MessageCount int             `json:"message_count"`
	IssueCount   int             `json:"issue_count,omitempty"`
	LastSyncAt   Time            `json:"last_sync_at"`
	CreatedAt    Time            `json:"created_at"`
	UpdatedAt    Time            `json:"updated_at"`
}

// ChatworkStatus reports whether the backend has a Chatwork token.
type ChatworkStatus struct {
	Configured bool `json:"configured"`
}

// ChatworkRoom is a room visible to the configured Chatwork account.
type ChatworkRoom struct {
	RoomID     int64  `json:"room_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	UnreadNum  int    `json:"unread_num"`
	MentionNum int    `json:"mention_num"`
}

// ChatworkAccount identifies a message author.
type ChatworkAccount struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
}

// ChatworkMessage is one message of a source.
type ChatworkMessage struct {
	MessageID string          `json:"message_id"`
	Account   ChatworkAccount `json:"account"`
	Body      string          `json:"body"`
	SendTime  int64           `json:"send_time"`
}

// SourceMessages is the content of a source, flattened and per message.
type SourceMessages struct {
	SourceID     string            `json:"source_id"`
	MessageCount int               `json:"message_count"`
	Content      string            `json:"content"`
	Messages     []ChatworkMessage `json:"messages"`
}

// PainLevel ranks how much an issue hurts.
type PainLevel string

const (
	PainHigh   PainLevel = "high"
	PainMedium PainLevel = "medium"
	PainLow    PainLevel = "low"
)

// IssueStatus is the lifecycle state of an extracted issue.
type IssueStatus string

const (
	IssueNew        IssueStatus = "new"
	IssueSelected   IssueStatus = "selected"
	IssueInProgress IssueStatus = "in_progress"
	IssueDone       IssueStatus = "done"
	IssueArchived   IssueStatus = "archived"
)

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueNew, IssueSelected, IssueInProgress, IssueDone, IssueArchived:
		return true
	}
	return false
}

// Issue is a problem the AI extracted from a source.
type Issue struct {
	ID                string      `json:"id"`
	ProjectID         string      `json:"project_id"`
	SourceID          string      `json:"source_id"`
	SourceType        string      `json:"source_type"`
	SourceLabel       string      `json:"source_label"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	Category          string      `json:"category"`
	PainLevel         PainLevel   `json:"pain_level"`
	OriginalContext   string      `json:"original_context"`
	TechApproach      string      `json:"tech_approach"`
	ExpectedOutcome   string      `json:"expected_outcome"`
	Status            IssueStatus `json:"status"`
	RequirementID     string      `json:"requirement_id,omitempty"`
	GitHubIssueURL    string      `json:"github_issue_url,omitempty"`
	ExtractionBatchID string      `json:"extraction_batch_id"`
	ExtractedAt       Time        `json:"extracted_at"`
	CreatedAt         Time        `json:"created_at"`
	UpdatedAt         Time        `json:"updated_at"`
}

// IssueFilter narrows Issues.List. Empty fields are not sent.
type IssueFilter struct {
	SourceID  string
	Status    IssueStatus
	PainLevel PainLevel
}

// ExtractResponse acknowledges an asynchronous extraction job.
type ExtractResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
	Message string `json:"message"`
}

// RequirementStatus is the review state of a requirement document.
type RequirementStatus string

const (
	RequirementDraft    RequirementStatus = "draft"
	RequirementReview   RequirementStatus = "review"
	RequirementApproved RequirementStatus = "approved"
	RequirementRejected RequirementStatus = "rejected"
)

// Requirement is a generated requirement document.
type Requirement struct {
	ID                        string            `json:"id"`
	ProjectID                 string            `json:"project_id"`
	IssueID                   string            `json:"issue_id"`
	Title                     string            `json:"title"`
	Background                string            `json:"background"`
	ProblemStatement          string            `json:"problem_statement"`
	FunctionalRequirements    []string          `json:"functional_requirements"`
	NonFunctionalRequirements []string          `json:"non_functional_requirements"`
	TechApproach              string            `json:"tech_approach"`
	MarkdownContent           string            `json:"markdown_content"`
	Status                    RequirementStatus `json:"status"`
	GitHubIssueURL            string            `json:"github_issue_url,omitempty"`
	CreatedAt                 Time              `json:"created_at"`
	UpdatedAt                 Time              `json:"updated_at"`
}

// RequirementUpdate patches a requirement. Nil fields are omitted.
type RequirementUpdate struct {
	MarkdownContent *string            `json:"markdown_content,omitempty"`
	Status          *RequirementStatus `json:"status,omitempty"`
}

// GenerateResponse acknowledges an asynchronous generation job.
type GenerateResponse struct {
	Status        string `json:"status"`
	RequirementID string `json:"requirement_id"`
	Message       string `json:"message"`
}

// GitHubIssueResponse is returned after creating a GitHub issue.
type GitHubIssueResponse struct {
	Status         string `json:"status"`
	GitHubIssueURL string `json:"github_issue_url"`
}

// DeleteResponse acknowledges a deletion.
type DeleteResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// DevelopmentStatus is the stage of an AI development run.
type DevelopmentStatus string

const (
	DevelopmentDesigning DevelopmentStatus = "designing"
	DevelopmentCoding    DevelopmentStatus = "coding"
	DevelopmentTesting   DevelopmentStatus = "testing"
	DevelopmentReview    DevelopmentStatus = "review"
	DevelopmentMerged    DevelopmentStatus = "merged"
	DevelopmentFailed    DevelopmentStatus = "failed"
)

// Settled reports whether the agents have stopped working on the run.
func (s DevelopmentStatus) Settled() bool {
	return s == DevelopmentReview || s == DevelopmentMerged || s == DevelopmentFailed
}

// AgentLogEntry is one line of an agent's activity log.
type AgentLogEntry struct {
	Timestamp Time   `json:"timestamp"`
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	Level     string `json:"level"`
}

// GeneratedFile is a source file produced by the coder agent.
type GeneratedFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Development tracks code generation for one requirement.
type Development struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	RequirementID  string            `json:"requirement_id"`
	Status         DevelopmentStatus `json:"status"`
	DesignDoc      string            `json:"design_doc,omitempty"`
	GeneratedFiles []GeneratedFile   `json:"generated_files"`
	TestResults    string            `json:"test_results,omitempty"`
	ErrorCount     int               `json:"error_count"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	GitHubBranch   string            `json:"github_branch,omitempty"`
	GitHubPRID     int               `json:"github_pr_id,omitempty"`
	GitHubPRURL    string            `json:"github_pr_url,omitempty"`
	AgentLogs      []AgentLogEntry   `json:"agent_logs"`
	CreatedAt      Time              `json:"created_at"`
	UpdatedAt      Time              `json:"updated_at"`
}

// StartDevelopmentResponse acknowledges a development run.
type StartDevelopmentResponse struct {
	Status        string `json:"status"`
	DevelopmentID string `json:"development_id"`
	Message       string `json:"message"`
}

// GitHubStatus reports whether the backend can push to GitHub.
type GitHubStatus struct {
	Configured bool    `json:"configured"`
	Repo       *string `json:"repo"`
}

// CreatePRResponse describes a pushed branch and opened pull request.
type CreatePRResponse struct {
	Status      string `json:"status"`
	Branch      string `json:"branch"`
	PRURL       string `json:"pr_url"`
	PRNumber    int    `json:"pr_number"`
	FilesPushed int    `json:"files_pushed"`
}

// PollingStatus is the state of the backend's Chatwork poller.
type PollingStatus struct {
	IsRunning       bool  `json:"is_running"`
	IntervalSeconds int   `json:"interval_seconds"`
	LastPollAt      *Time `json:"last_poll_at"`
	PollCount       int   `json:"poll_count"`
	ErrorCount      int   `json:"error_count"`
}

// SyncStatus combines Chatwork configuration and poller state.
type SyncStatus struct {
	ChatworkConfigured bool          `json:"chatwork_configured"`
	Polling            PollingStatus `json:"polling"`
}

// SyncControlResponse is returned by start, stop and config.
type SyncControlResponse struct {
	Message string        `json:"message"`
	Status  PollingStatus `json:"status"`
}

// SyncNowResponse is returned by an immediate sync.
type SyncNowResponse struct {
	Message  string  `json:"message"`
	SourceID *string `json:"source_id"`
}

// SourceSyncState is the per-room sync bookkeeping.
type SourceSyncState struct {
	SourceID      string  `json:"source_id"`
	RoomID        string  `json:"room_id"`
	LastMessageID *string `json:"last_message_id"`
	LastSyncAt    *Time   `json:"last_sync_at"`
	TotalMessages int     `json:"total_messages"`
	IsSyncing     bool    `json:"is_syncing"`
	Error         *string `json:"error"`
}

// SourceSyncStatus reports sync progress for one Chatwork source.
type SourceSyncStatus struct {
	SourceID   string           `json:"source_id"`
	Label      string           `json:"label"`
	RoomID     string           `json:"room_id,omitempty"`
	SyncStatus *SourceSyncState `json:"sync_status"`
}

// DashboardStats summarises a project.
type DashboardStats struct {
	Sources      int `json:"sources"`
	Issues       int `json:"issues"`
	Requirements int `json:"requirements"`
	Completed    int `json:"completed"`
	Developments int `json:"developments"`
}
