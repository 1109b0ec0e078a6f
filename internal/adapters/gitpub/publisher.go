// Package gitpub publishes snapshot files by committing them to a git
// working tree and pushing to a remote.
package gitpub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config describes the working tree and the remote to push to
type Config struct {
	Enabled     bool
	RepoPath    string
	Remote      string // empty disables the push
	AuthorName  string
	AuthorEmail string
	Username    string
	Token       string
	Location    *time.Location
}

// Publisher implements ports.Publisher on top of go-git
type Publisher struct {
	cfg      Config
	mu       sync.Mutex
	disabled sync.Once
	now      func() time.Time
}

// NewPublisher creates a publisher. The working tree is opened on every
// Publish so an external checkout can be replaced while the service runs.
func NewPublisher(cfg Config) *Publisher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Publisher{cfg: cfg, now: time.Now}
}

// Publish commits every changed path and pushes once
func (p *Publisher) Publish(ctx context.Context, paths ...string) error {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		l := log.Logger
		logger = &l
	}

	if !p.cfg.Enabled {
		p.disabled.Do(func() {
			logger.Info().Msg("publishing disabled, snapshots stay local")
		})
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := git.PlainOpen(p.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", p.cfg.RepoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	committed := 0
	for _, path := range paths {
		rel, err := p.relative(path)
		if err != nil {
			return err
		}

		if _, err := wt.Add(rel); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}

		status, err := wt.Status()
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}
		st, ok := status[rel]
		if !ok || st.Staging == git.Unmodified {
			logger.Debug().Str("path", rel).Msg("no changes to publish")
			continue
		}

		msg := fmt.Sprintf("Update %s %s", filepath.Base(rel), p.now().In(p.cfg.Location).Format("2006-01-02 15:04:05"))
		hash, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{
				Name:  p.cfg.AuthorName,
				Email: p.cfg.AuthorEmail,
				When:  p.now(),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to commit %s: %w", rel, err)
		}
		committed++
		logger.Info().
			Str("path", rel).
			Str("commit", hash.String()).
			Msg("snapshot committed")
	}

	if p.cfg.Remote == "" {
		return nil
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: p.cfg.Remote,
		Auth:       p.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push to %s: %w", p.cfg.Remote, err)
	}
	logger.Info().
		Str("remote", p.cfg.Remote).
		Int("commits", committed).
		Msg("snapshots pushed")
	return nil
}

// relative maps path into the working tree using forward slashes
func (p *Publisher) relative(path string) (string, error) {
	root, err := filepath.Abs(p.cfg.RepoPath)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside repository %s", path, p.cfg.RepoPath)
	}
	return filepath.ToSlash(rel), nil
}

func (p *Publisher) auth() transport.AuthMethod {
	if p.cfg.Token == "" {
		return nil
	}
	user := p.cfg.Username
	if user == "" {
		user = "git"
	}
	return &githttp.BasicAuth{Username: user, Password: p.cfg.Token}
}
