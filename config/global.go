package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Global is the user-level configuration file.
type Global struct {
	Servers        map[string]Server  `yaml:"servers,omitempty"`
	Accounts       map[string]Account `yaml:"accounts,omitempty"`
	DefaultAccount string             `yaml:"default_account,omitempty"`
}

type Server struct {
	URL string `yaml:"url,omitempty"`
}

// Account is a user identity on one server.
type Account struct {
	Server         string `yaml:"server,omitempty"`
	Token          string `yaml:"token,omitempty"`
	UserID         string `yaml:"user_id,omitempty"`
	DefaultProject string `yaml:"default_project,omitempty"`
	// Notifications enables desktop notifications for this account.
	// Unset means enabled.
	Notifications *bool `yaml:"notifications,omitempty"`
}

// NotificationsEnabled reports the effective notifications setting.
func (a Account) NotificationsEnabled() bool {
	return a.Notifications == nil || *a.Notifications
}

// DefaultPath returns $SGCHAT_CONFIG_PATH, or ~/.config/sgchat/config.yaml.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("SGCHAT_CONFIG_PATH")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sgchat", "config.yaml"), nil
}

func emptyGlobal() *Global {
	return &Global{
		Servers:  map[string]Server{},
		Accounts: map[string]Account{},
	}
}

// LoadGlobal reads the config at path. A missing file is an empty config.
func LoadGlobal(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyGlobal(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := emptyGlobal()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]Server{}
	}
	if cfg.Accounts == nil {
		cfg.Accounts = map[string]Account{}
	}
	return cfg, nil
}

// Save writes the config to path atomically with mode 0600.
func (c *Global) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o600)
}

// SetAccount adds or replaces an account. The first account saved, or
// any saved with makeDefault, becomes the default.
func (c *Global) SetAccount(name string, acct Account, makeDefault bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("empty account name")
	}
	if strings.TrimSpace(acct.Server) == "" {
		return fmt.Errorf("account %q missing server", name)
	}
	if c.Accounts == nil {
		c.Accounts = map[string]Account{}
	}
	c.Accounts[name] = acct
	if makeDefault || c.DefaultAccount == "" {
		c.DefaultAccount = name
	}
	return nil
}

// Update applies fn to the config at path under an exclusive file lock
// and saves the result.
func Update(path string, fn func(cfg *Global) error) error {
	if fn == nil {
		return errors.New("nil update function")
	}

	lock, err := LockExclusive(path + ".lock")
	if err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Close() }()

	cfg, err := LoadGlobal(path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return cfg.Save(path)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
