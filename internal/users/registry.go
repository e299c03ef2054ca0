// Package users manages the reviewer registry backing HTTP Basic auth.
package users

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/models"
)

// Account is one reviewer entry in the users file.
type Account struct {
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

// Registry loads and persists the users file. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	path     string
	accounts map[string]*Account
	log      logger.Logger
}

// Load reads the users file at path. A missing file is seeded with a
// default admin account so a fresh deployment can log in and change it.
func Load(path string, log logger.Logger) (*Registry, error) {
	r := &Registry{path: path, accounts: make(map[string]*Account), log: log}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn("Users file missing, seeding default admin account",
			logger.String("path", path))
		r.accounts["admin"] = &Account{Password: "changeme"}
		if err := r.save(); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &r.accounts); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}

	log.Info("Users loaded",
		logger.String("path", path),
		logger.Int("count", len(r.accounts)),
	)
	return r, nil
}

// NewInMemory builds a registry without a backing file; tests use this.
func NewInMemory(accounts map[string]*Account, log logger.Logger) *Registry {
	if accounts == nil {
		accounts = make(map[string]*Account)
	}
	return &Registry{accounts: accounts, log: log}
}

// Authenticate checks a username/password pair.
func (r *Registry) Authenticate(username, password string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.accounts[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(acct.Password), []byte(password)) == 1
}

// APIKey returns username's upstream API key, or "" when unset.
func (r *Registry) APIKey(username string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acct, ok := r.accounts[username]; ok {
		return acct.APIKey
	}
	return ""
}

// HasAPIKey reports whether username has an upstream API key configured.
func (r *Registry) HasAPIKey(username string) bool {
	return r.APIKey(username) != ""
}

// Update changes username's API key and/or password and rewrites the
// users file. Empty strings leave the existing value in place, except the
// API key which may be cleared explicitly via clearKey.
func (r *Registry) Update(username, apiKey string, clearKey bool, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.accounts[username]
	if !ok {
		return &models.NotFoundError{Key: username}
	}

	if clearKey {
		acct.APIKey = ""
	} else if apiKey != "" {
		acct.APIKey = apiKey
	}
	if password != "" {
		acct.Password = password
	}

	if err := r.save(); err != nil {
		return err
	}

	r.log.Info("User settings updated", logger.String("user", username))
	return nil
}

// save rewrites the users file. Callers must hold r.mu.
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write users file %s: %w", r.path, err)
	}
	return nil
}
