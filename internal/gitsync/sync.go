package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/elskow/berth/internal/config"
)

// Syncer keeps the local working copy at the tip of the requested branch.
// Two sub-paths: an existing clone is fetched, checked out and pulled; a
// missing one is cloned fresh. Either way the copy ends on the branch tip.
type Syncer struct {
	cfg     config.RepoConfig
	workDir string
	logger  *zap.Logger
}

func NewSyncer(cfg config.RepoConfig, workDir string, logger *zap.Logger) *Syncer {
	return &Syncer{cfg: cfg, workDir: workDir, logger: logger}
}

func (s *Syncer) WorkDir() string { return s.workDir }

func (s *Syncer) auth() transport.AuthMethod {
	if s.cfg.Token == "" {
		return nil
	}
	// username is arbitrary for token auth but must be non-empty
	return &githttp.BasicAuth{Username: "git", Password: s.cfg.Token}
}

func (s *Syncer) Sync(ctx context.Context) error {
	gitDir := filepath.Join(s.workDir, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		if err := s.update(ctx); err == nil {
			return nil
		} else if !errors.Is(err, git.ErrRepositoryNotExists) {
			return err
		}
		// unreadable clone, wipe and fall through to a fresh one
		s.logger.Warn("local clone unreadable, recloning", zap.String("dir", s.workDir))
		if err := os.RemoveAll(s.workDir); err != nil {
			return fmt.Errorf("failed to remove broken clone: %w", err)
		}
	}
	return s.clone(ctx)
}

func (s *Syncer) clone(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.workDir), 0o755); err != nil {
		return fmt.Errorf("failed to create checkout directory: %w", err)
	}

	s.logger.Info("cloning repository",
		zap.String("url", s.cfg.URL),
		zap.String("branch", s.cfg.Branch))

	_, err := git.PlainCloneContext(ctx, s.workDir, false, &git.CloneOptions{
		URL:           s.cfg.URL,
		Auth:          s.auth(),
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return fmt.Errorf("clone of %s failed: %w", s.cfg.URL, err)
	}
	return nil
}

func (s *Syncer) update(ctx context.Context) error {
	repo, err := git.PlainOpen(s.workDir)
	if err != nil {
		return err
	}

	s.logger.Info("updating existing clone",
		zap.String("dir", s.workDir),
		zap.String("branch", s.cfg.Branch))

	// The clone was single-branch, so origin's configured refspec only
	// covers the branch cloned back then. Fetch the configured branch by
	// explicit refspec so a branch change between runs still lands.
	refspec := gitconfig.RefSpec(fmt.Sprintf(
		"+refs/heads/%[1]s:refs/remotes/origin/%[1]s", s.cfg.Branch))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       s.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch of %s failed: %w", s.cfg.Branch, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", s.cfg.Branch), true)
	if err != nil {
		return fmt.Errorf("branch %s not found on origin: %w", s.cfg.Branch, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree failed: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(s.cfg.Branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		// local branch does not exist yet, create it from the fetched tip
		if err := wt.Checkout(&git.CheckoutOptions{
			Branch: branchRef,
			Hash:   remoteRef.Hash(),
			Create: true,
			Force:  true,
		}); err != nil {
			return fmt.Errorf("checkout of %s failed: %w", s.cfg.Branch, err)
		}
	}

	// the working copy is a deploy source, not a development checkout:
	// whatever the fetched tip says is what gets deployed
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: remoteRef.Hash()}); err != nil {
		return fmt.Errorf("reset to origin/%s failed: %w", s.cfg.Branch, err)
	}
	return nil
}
