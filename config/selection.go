package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Selection is the resolved set of settings a chat command runs with.
type Selection struct {
	AccountName string
	ServerName  string
	BaseURL     string
	Token       string
	UserID      string
	ProjectID   string

	Notifications bool
}

type ResolveOptions struct {
	AccountName string
	ServerName  string

	WorkingDir  string
	ContextPath string
	Context     *WorktreeContext

	BaseURLOverride string
	TokenOverride   string
	ProjectOverride string

	// AllowEnvOverrides lets SGCHAT_ACCOUNT, SGCHAT_SERVER, SGCHAT_URL,
	// SGCHAT_TOKEN and SGCHAT_PROJECT fill anything not set above.
	AllowEnvOverrides bool
}

// Resolve picks the account, server, token and project to use.
//
// An explicit account wins. Otherwise the worktree context and the global
// default choose one, constrained to the requested server if any. When no
// account can be chosen but a URL was supplied directly, the selection is
// built from the overrides alone.
func Resolve(global *Global, opts ResolveOptions) (*Selection, error) {
	if global == nil {
		global = emptyGlobal()
	}

	ctx, err := resolveContext(opts)
	if err != nil {
		return nil, err
	}

	env := func(key string) string {
		if !opts.AllowEnvOverrides {
			return ""
		}
		return strings.TrimSpace(os.Getenv(key))
	}
	firstOf := func(vals ...string) string {
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}

	accountName := firstOf(opts.AccountName, env("SGCHAT_ACCOUNT"))
	serverName := firstOf(opts.ServerName, env("SGCHAT_SERVER"))
	baseURL := strings.TrimSpace(opts.BaseURLOverride)
	if baseURL == "" {
		if v := env("SGCHAT_URL"); v != "" {
			if err := ValidateBaseURL(v); err != nil {
				return nil, fmt.Errorf("invalid SGCHAT_URL: %w", err)
			}
			baseURL = v
		}
	}
	token := firstOf(opts.TokenOverride, env("SGCHAT_TOKEN"))
	project := firstOf(opts.ProjectOverride, env("SGCHAT_PROJECT"))
	if project == "" && ctx != nil {
		project = strings.TrimSpace(ctx.Project)
	}

	if accountName == "" {
		accountName, err = chooseAccount(global, ctx, serverName)
		if err != nil {
			if baseURL != "" {
				return &Selection{
					ServerName:    serverName,
					BaseURL:       baseURL,
					Token:         token,
					ProjectID:     project,
					Notifications: true,
				}, nil
			}
			return nil, err
		}
	}

	acct, ok := global.Accounts[accountName]
	if !ok {
		return nil, fmt.Errorf("unknown account %q (configure it with `sgchat config set-account`)", accountName)
	}
	if strings.TrimSpace(acct.Server) == "" {
		return nil, fmt.Errorf("account %q missing server", accountName)
	}
	if serverName == "" {
		serverName = strings.TrimSpace(acct.Server)
	}
	if baseURL == "" {
		if baseURL, err = resolveServerURL(global, serverName); err != nil {
			return nil, err
		}
	}

	return &Selection{
		AccountName:   accountName,
		ServerName:    serverName,
		BaseURL:       baseURL,
		Token:         firstOf(token, acct.Token),
		UserID:        strings.TrimSpace(acct.UserID),
		ProjectID:     firstOf(project, acct.DefaultProject),
		Notifications: acct.NotificationsEnabled(),
	}, nil
}

func resolveContext(opts ResolveOptions) (*WorktreeContext, error) {
	if opts.Context != nil {
		return opts.Context, nil
	}
	if strings.TrimSpace(opts.ContextPath) != "" {
		return LoadContext(opts.ContextPath)
	}
	if strings.TrimSpace(opts.WorkingDir) == "" {
		return nil, nil
	}
	ctx, _, err := LoadContextFromDir(opts.WorkingDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid worktree context: %w", err)
	}
	return ctx, nil
}

func chooseAccount(global *Global, ctx *WorktreeContext, serverName string) (string, error) {
	var candidates []string
	if ctx != nil {
		if serverName != "" {
			candidates = append(candidates, ctx.ServerAccounts[serverName])
		}
		candidates = append(candidates, ctx.DefaultAccount)
	}
	candidates = append(candidates, global.DefaultAccount)

	for _, name := range candidates {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if serverName == "" {
			return name, nil
		}
		if acct, ok := global.Accounts[name]; ok && strings.TrimSpace(acct.Server) == serverName {
			return name, nil
		}
	}

	if serverName != "" {
		return "", fmt.Errorf("no account configured for server %q (set %s server_accounts[%q], or pass --account)", serverName, ContextRelativePath, serverName)
	}
	return "", fmt.Errorf("no default account configured (set %s default_account, or default_account in your sgchat config)", ContextRelativePath)
}

func resolveServerURL(global *Global, serverName string) (string, error) {
	if srv, ok := global.Servers[serverName]; ok && strings.TrimSpace(srv.URL) != "" {
		return strings.TrimSpace(srv.URL), nil
	}
	return DeriveBaseURL(serverName)
}

// DeriveBaseURL turns a server key (host:port or a full URL) into a base
// URL. Local hosts get http, everything else https.
func DeriveBaseURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty server name")
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name, nil
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if strings.HasPrefix(name, local) {
			return "http://" + name, nil
		}
	}
	return "https://" + name, nil
}

// ServerNameFromURL returns the host:port a base URL points at.
func ServerNameFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url missing host: %q", raw)
	}
	return u.Host, nil
}

func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty base URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", raw)
	}
	return nil
}
