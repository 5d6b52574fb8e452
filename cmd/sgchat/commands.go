package main

import (
	"errors"
	"fmt"
	"strings"

	servicegeek "github.com/service-geek/client"
	"github.com/service-geek/client/chat"
	"github.com/service-geek/client/config"
	"github.com/service-geek/client/transport"
	"github.com/spf13/cobra"
)

// newSession builds a chat session for the selected project. The live
// transport is wired but not activated.
func (a *app) newSession(c *servicegeek.Client, sel *config.Selection, tweak func(*chat.Config)) (*chat.Session, error) {
	if sel.ProjectID == "" {
		return nil, errors.New("no project selected (pass --project, set SGCHAT_PROJECT, or set default_project on the account)")
	}
	tr, err := transport.NewWebSocket(transport.WebSocketConfig{BaseURL: sel.BaseURL, Logger: a.logger})
	if err != nil {
		return nil, err
	}
	cfg := chat.Config{
		ProjectID:     sel.ProjectID,
		API:           c,
		Transport:     tr,
		CurrentUserID: sel.UserID,
		Logger:        a.logger,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	return chat.NewSession(cfg)
}

func newHistoryCmd(a *app) *cobra.Command {
	var page int
	var all bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a project's chat history, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, sel, err := a.client()
			if err != nil {
				return err
			}
			s, err := a.newSession(c, sel, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.LoadPage(ctx, page); err != nil {
				return err
			}
			for all && s.HasMore() {
				if err := s.LoadMore(ctx); err != nil {
					return err
				}
			}

			msgs := s.Messages()
			if a.jsonOutput {
				return a.printJSON(msgs)
			}
			p := newPrinter(a.stdout)
			for _, m := range msgs {
				p.message(m)
			}
			if s.HasMore() {
				p.status("older messages available (page %d)", s.CurrentPage()+1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page to load (1 is the newest)")
	cmd.Flags().BoolVar(&all, "all", false, "keep loading older pages until the start of the chat")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>...",
		Short: "Send a message to the project chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, sel, err := a.client()
			if err != nil {
				return err
			}
			s, err := a.newSession(c, sel, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			msgs := s.Messages()
			if len(msgs) == 0 {
				return nil
			}
			sent := msgs[len(msgs)-1]
			if a.jsonOutput {
				return a.printJSON(sent)
			}
			fmt.Fprintln(a.stdout, sent.ID)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <message-id>",
		Short: "Delete a chat message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, sel, err := a.client()
			if err != nil {
				return err
			}
			s, err := a.newSession(c, sel, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "deleted", args[0])
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := a.resolve()
			if err != nil {
				return err
			}
			c, err := servicegeek.NewWithToken(sel.BaseURL, sel.Token)
			if err != nil {
				return err
			}
			status := c.CheckConnection(cmd.Context())
			if a.jsonOutput {
				if err := a.printJSON(status); err != nil {
					return err
				}
			} else if status.Connected {
				fmt.Fprintln(a.stdout, "connected", sel.BaseURL)
			}
			if !status.Connected {
				return fmt.Errorf("server %s is unreachable", sel.BaseURL)
			}
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.client()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(me)
		},
	}
}
