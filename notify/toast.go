// Package notify renders user feedback for the command line: one-line
// toasts for finished actions and a spinner overlay for long operations.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/randalmurphal/autodev/apiclient"
)

// Kind is the toast variant.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
)

var icons = map[Kind]string{
	KindSuccess: "✓",
	KindError:   "✗",
	KindInfo:    "i",
	KindWarning: "!",
}

// Toast is one notification.
type Toast struct {
	Kind        Kind
	Title       string
	Description string
}

// String renders the toast as a single line.
func (t Toast) String() string {
	s := fmt.Sprintf("[%s] %s", icons[t.Kind], t.Title)
	if t.Description != "" {
		s += ": " + t.Description
	}
	return s
}

// Toaster writes toasts to an io.Writer. Safe for concurrent use.
type Toaster struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

// NewToaster returns a Toaster writing to w. A nil w means os.Stderr.
func NewToaster(w io.Writer) *Toaster {
	if w == nil {
		w = os.Stderr
	}
	return &Toaster{w: w}
}

// SetQuiet suppresses success and info toasts.
func (t *Toaster) SetQuiet(quiet bool) {
	t.mu.Lock()
	t.quiet = quiet
	t.mu.Unlock()
}

// Show writes toast.
func (t *Toaster) Show(toast Toast) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quiet && (toast.Kind == KindSuccess || toast.Kind == KindInfo) {
		return
	}
	fmt.Fprintln(t.w, toast.String())
}

func (t *Toaster) Success(title, description string) {
	t.Show(Toast{Kind: KindSuccess, Title: title, Description: description})
}

func (t *Toaster) Error(title, description string) {
	t.Show(Toast{Kind: KindError, Title: title, Description: description})
}

func (t *Toaster) Info(title, description string) {
	t.Show(Toast{Kind: KindInfo, Title: title, Description: description})
}

func (t *Toaster) Warning(title, description string) {
	t.Show(Toast{Kind: KindWarning, Title: title, Description: description})
}

// ErrorFrom shows an error toast whose description is the localized
// message for err.
func (t *Toaster) ErrorFrom(title string, err error) {
	if err == nil {
		return
	}
	t.Error(title, apiclient.Message(err))
}
