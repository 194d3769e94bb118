package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
)

// Overlay shows a spinner while a long operation runs. When the output is
// not a terminal, or CI=true, each message is printed once instead.
type Overlay struct {
	mu      sync.Mutex
	w       io.Writer
	spinner *spinner.Spinner
	active  bool
	started time.Time
}

// NewOverlay returns an Overlay writing to w. A nil w means os.Stderr.
func NewOverlay(w io.Writer) *Overlay {
	if w == nil {
		w = os.Stderr
	}
	o := &Overlay{w: w}
	if interactive(w) {
		o.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		o.spinner.Color("cyan", "bold")
	}
	return o
}

func interactive(w io.Writer) bool {
	if os.Getenv("CI") == "true" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start shows msg. Calling Start while active replaces the message.
func (o *Overlay) Start(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		o.update(msg)
		return
	}
	o.active = true
	o.started = time.Now()
	if o.spinner == nil {
		fmt.Fprintf(o.w, "%s...\n", msg)
		return
	}
	o.spinner.Suffix = " " + msg
	o.spinner.Start()
}

// Update replaces the message of an active overlay.
func (o *Overlay) Update(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		o.update(msg)
	}
}

func (o *Overlay) update(msg string) {
	if o.spinner == nil {
		fmt.Fprintf(o.w, "%s...\n", msg)
		return
	}
	o.spinner.Lock()
	o.spinner.Suffix = " " + msg
	o.spinner.Unlock()
}

// Stop hides the overlay and returns how long it was shown.
func (o *Overlay) Stop() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active {
		return 0
	}
	o.active = false
	if o.spinner != nil {
		o.spinner.Stop()
	}
	return time.Since(o.started)
}

// Active reports whether the overlay is showing.
func (o *Overlay) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}
