package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	servicegeek "github.com/service-geek/client"
	"github.com/service-geek/client/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage accounts and worktree settings",
	}
	cmd.AddCommand(newSetAccountCmd(a), newShowConfigCmd(a))
	return cmd
}

func newSetAccountCmd(a *app) *cobra.Command {
	var (
		userID        string
		makeDefault   bool
		notifications bool
		pin           bool
	)
	cmd := &cobra.Command{
		Use:   "set-account <name>",
		Short: "Save an account using the global --url, --token and --project flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}

			var baseURL string
			if a.baseURL != "" {
				if err := config.ValidateBaseURL(a.baseURL); err != nil {
					return err
				}
				baseURL = strings.TrimRight(a.baseURL, "/")
			}
			serverName := a.serverName
			if serverName == "" {
				if baseURL == "" {
					return errors.New("pass --url or --server")
				}
				if serverName, err = config.ServerNameFromURL(baseURL); err != nil {
					return err
				}
			}

			token := a.token
			if token == "" {
				token = os.Getenv("SGCHAT_TOKEN")
			}
			if userID == "" && token != "" && baseURL != "" {
				c, err := servicegeek.NewWithToken(baseURL, token)
				if err != nil {
					return err
				}
				me, err := c.Me(cmd.Context())
				if err != nil {
					return fmt.Errorf("look up user: %w", err)
				}
				userID = me.ID
			}

			err = config.Update(path, func(cfg *config.Global) error {
				if baseURL != "" {
					cfg.Servers[serverName] = config.Server{URL: baseURL}
				} else if _, ok := cfg.Servers[serverName]; !ok {
					return fmt.Errorf("unknown server %q (pass --url)", serverName)
				}
				acct := cfg.Accounts[name]
				acct.Server = serverName
				if token != "" {
					acct.Token = token
				}
				if userID != "" {
					acct.UserID = userID
				}
				if a.projectID != "" {
					acct.DefaultProject = a.projectID
				}
				if cmd.Flags().Changed("notifications") {
					acct.Notifications = &notifications
				}
				return cfg.SetAccount(name, acct, makeDefault)
			})
			if err != nil {
				return err
			}

			if pin {
				if err := pinContext(serverName, name, a.projectID); err != nil {
					return fmt.Errorf("write worktree context: %w", err)
				}
			}
			fmt.Fprintf(a.stdout, "saved account %s on %s\n", name, serverName)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id (looked up from the token when empty)")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default account")
	cmd.Flags().BoolVar(&notifications, "notifications", true, "raise notifications for incoming messages")
	cmd.Flags().BoolVar(&pin, "pin", false, "pin the account and project to the current worktree")
	return cmd
}

// pinContext points the worktree governing the working directory at the
// account, creating .sgchat/context when there is none.
func pinContext(serverName, accountName, projectID string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	ctxPath, err := config.FindContext(wd)
	if err != nil {
		ctxPath = filepath.Join(wd, config.ContextRelativePath)
	}

	ctx, err := config.LoadContext(ctxPath)
	if err != nil {
		ctx = &config.WorktreeContext{ServerAccounts: map[string]string{}}
	}
	ctx.DefaultAccount = accountName
	ctx.ServerAccounts[serverName] = accountName
	if projectID != "" {
		ctx.Project = projectID
	}
	return config.SaveContext(ctxPath, ctx)
}

type accountView struct {
	Name           string `json:"name"`
	Server         string `json:"server"`
	URL            string `json:"url"`
	UserID         string `json:"user_id,omitempty"`
	DefaultProject string `json:"default_project,omitempty"`
	Notifications  bool   `json:"notifications"`
	HasToken       bool   `json:"has_token"`
	Default        bool   `json:"default"`
}

func newShowConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List saved accounts (tokens are not printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadGlobal(path)
			if err != nil {
				return err
			}

			var views []accountView
			for name, acct := range cfg.Accounts {
				views = append(views, accountView{
					Name:           name,
					Server:         acct.Server,
					URL:            cfg.Servers[acct.Server].URL,
					UserID:         acct.UserID,
					DefaultProject: acct.DefaultProject,
					Notifications:  acct.NotificationsEnabled(),
					HasToken:       acct.Token != "",
					Default:        name == cfg.DefaultAccount,
				})
			}
			slices.SortFunc(views, func(x, y accountView) int { return strings.Compare(x.Name, y.Name) })

			if a.jsonOutput {
				return a.printJSON(views)
			}
			for _, v := range views {
				mark := " "
				if v.Default {
					mark = "*"
				}
				fmt.Fprintf(a.stdout, "%s %s\t%s\t%s\n", mark, v.Name, v.URL, v.DefaultProject)
			}
			return nil
		},
	}
}
