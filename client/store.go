package client

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// CredentialStore persists the tokens of the signed in user.
// Load returns nil tokens and a nil error when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (*buildtracker.Tokens, error)
	Save(ctx context.Context, tokens *buildtracker.Tokens) error
	Clear(ctx context.Context) error
}

// MemoryCredentialStore keeps tokens for the life of the process
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	tokens *buildtracker.Tokens
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Load(ctx context.Context) (*buildtracker.Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return nil, nil
	}
	t := *s.tokens
	return &t, nil
}

func (s *MemoryCredentialStore) Save(ctx context.Context, tokens *buildtracker.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokens == nil {
		s.tokens = nil
		return nil
	}
	t := *tokens
	s.tokens = &t
	return nil
}

func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	return s.Save(ctx, nil)
}

// credentialsFile is the on disk layout of FileCredentialStore
type credentialsFile struct {
	Endpoint string               `yaml:"endpoint,omitempty"`
	Tokens   *buildtracker.Tokens `yaml:"tokens"`
}

// FileCredentialStore keeps tokens in a YAML file readable only by the
// current user
type FileCredentialStore struct {
	mu       sync.Mutex
	path     string
	endpoint string
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// DefaultCredentialsPath returns ~/.config/buildtracker/credentials.yaml
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to find user config dir")
	}
	return filepath.Join(dir, "buildtracker", "credentials.yaml"), nil
}

// WithEndpoint records the identity service the tokens belong to
func (s *FileCredentialStore) WithEndpoint(endpoint string) *FileCredentialStore {
	s.endpoint = endpoint
	return s
}

func (s *FileCredentialStore) Path() string {
	return s.path
}

func (s *FileCredentialStore) Load(ctx context.Context) (*buildtracker.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "read credentials").
			WithMetadata(map[string]any{"path": s.path})
	}

	var file credentialsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse credentials").
			WithMetadata(map[string]any{"path": s.path})
	}

	// tokens issued by another service are not ours to use
	if s.endpoint != "" && file.Endpoint != "" && file.Endpoint != s.endpoint {
		return nil, nil
	}

	return file.Tokens, nil
}

func (s *FileCredentialStore) Save(ctx context.Context, tokens *buildtracker.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := yaml.Marshal(credentialsFile{Endpoint: s.endpoint, Tokens: tokens})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode credentials")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "create credentials dir").
			WithMetadata(map[string]any{"path": s.path})
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "write credentials").
			WithMetadata(map[string]any{"path": s.path})
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "write credentials").
			WithMetadata(map[string]any{"path": s.path})
	}
	return nil
}

func (s *FileCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "remove credentials").
			WithMetadata(map[string]any{"path": s.path})
	}
	return nil
}
