// Package workspace tracks the project list and the current project
// selection, persisting the selection through a Store.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/autodev/api"
)

// ErrUnknownProject is returned by Select for an ID not in the list.
var ErrUnknownProject = errors.New("workspace: unknown project")

// LoadFailedMessage is shown when the project list cannot be loaded.
const LoadFailedMessage = "プロジェクトの読み込みに失敗しました"

// Projects is the subset of the projects API the workspace uses.
// *api.ProjectsService satisfies it.
type Projects interface {
	List(ctx context.Context) ([]api.Project, error)
	Create(ctx context.Context, name, description string) (api.Project, error)
	Update(ctx context.Context, id string, u api.ProjectUpdate) (api.Project, error)
	Delete(ctx context.Context, id string) (api.DeleteResponse, error)
}

// Workspace holds the project list and the current selection.
// Safe for concurrent use.
type Workspace struct {
	projects Projects
	store    Store
	logger   *slog.Logger

	mu      sync.RWMutex
	list    []api.Project
	current *api.Project
	loadErr error
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Workspace. A nil store keeps the selection in memory.
func New(projects Projects, store Store, opts ...Option) *Workspace {
	if store == nil {
		store = NewMemoryStore()
	}
	w := &Workspace{projects: projects, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Refresh reloads the project list. The saved project is selected when it
// still exists, otherwise the first project. An empty list leaves the
// current selection untouched. On failure the previous list is kept.
func (w *Workspace) Refresh(ctx context.Context) error {
	list, err := w.projects.List(ctx)
	if err != nil {
		w.mu.Lock()
		w.loadErr = err
		w.mu.Unlock()
		w.logger.Error("failed to load projects", slog.Any("error", err))
		return fmt.Errorf("load projects: %w", err)
	}

	saved, err := w.store.LoadSelection()
	if err != nil {
		w.logger.Warn("failed to read saved project", slog.Any("error", err))
		saved = ""
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadErr = nil
	w.list = list
	if len(list) == 0 {
		return nil
	}
	pick := list[0]
	if saved != "" {
		if p, ok := find(list, saved); ok {
			pick = p
		}
	}
	w.current = &pick
	return nil
}

// Select makes id current and persists it.
func (w *Workspace) Select(id string) error {
	w.mu.Lock()
	p, ok := find(w.list, id)
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	w.current = &p
	w.mu.Unlock()
	return w.persist(id)
}

// Create adds a project at the front of the list and selects it.
func (w *Workspace) Create(ctx context.Context, name, description string) (api.Project, error) {
	p, err := w.projects.Create(ctx, name, description)
	if err != nil {
		return api.Project{}, err
	}
	w.mu.Lock()
	w.list = append([]api.Project{p}, w.list...)
	cur := p
	w.current = &cur
	w.mu.Unlock()
	return p, w.persist(p.ID)
}

// Update patches a project and replaces it in place.
func (w *Workspace) Update(ctx context.Context, id string, u api.ProjectUpdate) (api.Project, error) {
	p, err := w.projects.Update(ctx, id, u)
	if err != nil {
		return api.Project{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.list {
		if w.list[i].ID == id {
			w.list[i] = p
		}
	}
	if w.current != nil && w.current.ID == id {
		cur := p
		w.current = &cur
	}
	return p, nil
}

// Delete removes a project. Deleting the current project selects the first
// remaining one, or nothing when none remain.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	if _, err := w.projects.Delete(ctx, id); err != nil {
		return err
	}

	w.mu.Lock()
	remaining := make([]api.Project, 0, len(w.list))
	for _, p := range w.list {
		if p.ID != id {
			remaining = append(remaining, p)
		}
	}
	w.list = remaining
	if w.current == nil || w.current.ID != id {
		w.mu.Unlock()
		return nil
	}
	if len(remaining) == 0 {
		w.current = nil
		w.mu.Unlock()
		return w.persist("")
	}
	next := remaining[0]
	w.current = &next
	w.mu.Unlock()
	return w.persist(next.ID)
}

// Current returns the selected project, if any.
func (w *Workspace) Current() (api.Project, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == nil {
		return api.Project{}, false
	}
	return *w.current, true
}

// CurrentID returns the selected project ID, or api.DefaultProjectID.
func (w *Workspace) CurrentID() string {
	if p, ok := w.Current(); ok {
		return p.ID
	}
	return api.DefaultProjectID
}

// Projects returns a copy of the project list.
func (w *Workspace) Projects() []api.Project {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]api.Project(nil), w.list...)
}

// Err returns the last Refresh failure, cleared by a successful Refresh.
func (w *Workspace) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loadErr
}

func (w *Workspace) persist(id string) error {
	if err := w.store.SaveSelection(id); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func find(list []api.Project, id string) (api.Project, bool) {
	for _, p := range list {
		if p.ID == id {
			return p, true
		}
	}
	return api.Project{}, false
}
