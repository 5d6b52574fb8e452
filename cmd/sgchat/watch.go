package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/service-geek/client/chat"
	"github.com/service-geek/client/notify"
	"github.com/service-geek/client/transport"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		noNotify    bool
		fromStdin   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a project's chat live",
		Long: "Loads the newest page of history, joins the project's live chat and prints\n" +
			"every message as it arrives. With --stdin each input line is sent as a message.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, sel, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reg := prometheus.NewRegistry()
			metrics := chat.NewMetrics(reg)
			if metricsAddr != "" {
				stop, err := serveMetrics(metricsAddr, reg)
				if err != nil {
					return err
				}
				defer stop()
			}

			p := newPrinter(a.stdout)
			disconnected := make(chan string, 1)
			var s *chat.Session
			s, err = a.newSession(c, sel, func(cfg *chat.Config) {
				cfg.Metrics = metrics
				cfg.NotificationsEnabled = sel.Notifications && !noNotify
				cfg.Notifier = a.notifier()
				cfg.OnMessage = p.message
				cfg.OnEvent = func(ev transport.Event) {
					switch e := ev.(type) {
					case transport.Connected:
						p.status("connected to %s", sel.ProjectID)
					case transport.UserJoined:
						p.status("%s joined", e.UserID)
					case transport.UserLeft:
						p.status("%s left", e.UserID)
					case transport.UserTyping:
						if line := typingLine(s.TypingUsers()); line != "" {
							p.status("%s", line)
						}
					case transport.MessageDeleted:
						p.status("message %s deleted", e.MessageID)
					case transport.ServerError:
						p.errorf("server: %s", e.Message)
					case transport.ConnectError:
						p.errorf("connection: %v", e.Err)
					case transport.Disconnected:
						select {
						case disconnected <- e.Reason:
						default:
						}
					}
				}
			})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.LoadPage(ctx, 1); err != nil {
				return err
			}
			for _, m := range s.Messages() {
				p.message(m)
			}
			if err := s.Activate(ctx, sel.Token); err != nil {
				return err
			}

			inputDone := make(chan error, 1)
			if fromStdin {
				go func() { inputDone <- sendLines(ctx, s, a, p) }()
			}

			select {
			case <-ctx.Done():
				return nil
			case reason := <-disconnected:
				return fmt.Errorf("disconnected from chat: %s", reason)
			case err := <-inputDone:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not raise notifications for incoming messages")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "send each line read from stdin; exit when stdin closes")
	return cmd
}

// sendLines sends every non-blank stdin line. It returns when input ends.
func sendLines(ctx context.Context, s *chat.Session, a *app, p *printer) error {
	sc := bufio.NewScanner(a.stdin)
	for sc.Scan() {
		line := sc.Text()
		if err := chat.ValidateContent(line); err != nil {
			if errors.Is(err, chat.ErrEmptyContent) {
				continue
			}
			p.errorf("%v", err)
			continue
		}
		if err := s.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.errorf("send: %v", err)
		}
	}
	return sc.Err()
}

// notifier raises notifications on stderr when it is a terminal.
func (a *app) notifier() chat.Notifier {
	if f, ok := a.stderr.(*os.File); ok {
		return notify.NewTerminal(f)
	}
	return notify.New(a.stderr, false)
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
