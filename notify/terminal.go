// Package notify shows chat notifications in a terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/service-geek/client/chat"
	"golang.org/x/term"
)

// Terminal is a chat.Notifier that raises a desktop notification through
// the OSC 777 escape sequence and prints a one-line summary. Output that
// is not a terminal has notification permission denied.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	out   *termenv.Output
	tty   bool
	title lipgloss.Style
	tag   lipgloss.Style
	last  map[string]string
}

// NewTerminal writes to f, granting permission only when f is a terminal.
func NewTerminal(f *os.File) *Terminal {
	return New(f, term.IsTerminal(int(f.Fd())))
}

// New writes to w. tty states whether w is an interactive terminal.
func New(w io.Writer, tty bool) *Terminal {
	r := lipgloss.NewRenderer(w)
	return &Terminal{
		w:     w,
		out:   termenv.NewOutput(w),
		tty:   tty,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		tag:   r.NewStyle().Faint(true),
		last:  make(map[string]string),
	}
}

func (t *Terminal) Permission() chat.Permission {
	if t.tty {
		return chat.PermissionGranted
	}
	return chat.PermissionDenied
}

func (t *Terminal) RequestPermission(ctx context.Context) (chat.Permission, error) {
	return t.Permission(), ctx.Err()
}

// Show raises the notification. A repeat of the last message shown under
// the same tag is skipped.
func (t *Terminal) Show(ctx context.Context, n chat.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n.Tag != "" && n.MessageID != "" && t.last[n.Tag] == n.MessageID {
		return nil
	}
	if t.tty {
		t.out.Notify(n.Title, n.Body)
	}
	if _, err := fmt.Fprintf(t.w, "%s %s %s\n", t.tag.Render("["+n.ProjectID+"]"), t.title.Render(n.Title), n.Body); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if n.Tag != "" {
		t.last[n.Tag] = n.MessageID
	}
	return nil
}
