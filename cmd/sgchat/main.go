package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	servicegeek "github.com/service-geek/client"
	"github.com/service-geek/client/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	loadDotenvBestEffort()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadDotenvBestEffort() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.sgchat")
}

// app carries the global flags and the I/O the commands write to.
type app struct {
	serverName  string
	accountName string
	baseURL     string
	token       string
	projectID   string
	logLevel    string
	jsonOutput  bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "sgchat",
		Short:         "Service Geek project chat client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(a.stderr, a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.serverName, "server", "", "server name from the config file")
	pf.StringVar(&a.accountName, "account", "", "account name from the config file")
	pf.StringVar(&a.baseURL, "url", "", "API base URL (overrides the account's server)")
	pf.StringVar(&a.token, "token", "", "bearer token (overrides the account's token)")
	pf.StringVarP(&a.projectID, "project", "p", "", "project id (overrides the account and worktree default)")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newHistoryCmd(a),
		newSendCmd(a),
		newDeleteCmd(a),
		newWatchCmd(a),
		newHealthCmd(a),
		newWhoamiCmd(a),
		newConfigCmd(a),
	)
	return root
}

// newLogger builds the command logger: text on a terminal, JSON otherwise.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func (a *app) resolve() (*config.Selection, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	global, err := config.LoadGlobal(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	wd, _ := os.Getwd()
	return config.Resolve(global, config.ResolveOptions{
		AccountName:       a.accountName,
		ServerName:        a.serverName,
		WorkingDir:        wd,
		BaseURLOverride:   a.baseURL,
		TokenOverride:     a.token,
		ProjectOverride:   a.projectID,
		AllowEnvOverrides: true,
	})
}

func (a *app) client() (*servicegeek.Client, *config.Selection, error) {
	sel, err := a.resolve()
	if err != nil {
		return nil, nil, err
	}
	if sel.Token == "" {
		return nil, nil, fmt.Errorf("no token for account %q (set one with `sgchat config set-account`)", sel.AccountName)
	}
	c, err := servicegeek.NewWithToken(sel.BaseURL, sel.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return c, sel, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
