package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ContextRelativePath is where a worktree pins its chat settings.
var ContextRelativePath = filepath.Join(".sgchat", "context")

// WorktreeContext pins an account and project to a directory tree.
type WorktreeContext struct {
	DefaultAccount string            `yaml:"default_account,omitempty"`
	ServerAccounts map[string]string `yaml:"server_accounts,omitempty"`
	Project        string            `yaml:"project,omitempty"`
}

// FindContext walks up from startDir looking for a worktree context file.
// It returns os.ErrNotExist when there is none.
func FindContext(startDir string) (string, error) {
	dir := filepath.Clean(startDir)
	for {
		p := filepath.Join(dir, ContextRelativePath)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func LoadContext(path string) (*WorktreeContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ctx WorktreeContext
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, err
	}
	if ctx.ServerAccounts == nil {
		ctx.ServerAccounts = map[string]string{}
	}
	return &ctx, nil
}

// LoadContextFromDir finds and loads the context governing startDir.
func LoadContextFromDir(startDir string) (*WorktreeContext, string, error) {
	p, err := FindContext(startDir)
	if err != nil {
		return nil, "", err
	}
	ctx, err := LoadContext(p)
	if err != nil {
		return nil, "", err
	}
	return ctx, p, nil
}

func SaveContext(path string, ctx *WorktreeContext) error {
	if ctx == nil {
		return errors.New("nil context")
	}
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o600)
}
