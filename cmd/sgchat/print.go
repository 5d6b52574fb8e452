package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	servicegeek "github.com/service-geek/client"
)

// printer renders chat lines. Styles degrade to plain text when w is not
// a terminal.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	name lipgloss.Style
	dim  lipgloss.Style
	warn lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:    w,
		name: r.NewStyle().Bold(true),
		dim:  r.NewStyle().Faint(true),
		warn: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

func (p *printer) message(m servicegeek.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := m.Author.DisplayName()
	if name == "" {
		name = m.SenderID()
	}
	fmt.Fprintf(p.w, "%s %s %s %s\n",
		p.dim.Render(humanize.Time(m.CreatedAt)),
		p.name.Render(name+":"),
		m.Content,
		p.dim.Render("["+m.ID+"]"),
	)
}

func (p *printer) status(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.dim.Render("* "+fmt.Sprintf(format, args...)))
}

func (p *printer) errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.warn.Render("! "+fmt.Sprintf(format, args...)))
}

func typingLine(users []string) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return users[0] + " is typing"
	default:
		return strings.Join(users, ", ") + " are typing"
	}
}
