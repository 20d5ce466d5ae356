package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
)

type GitBranchConfig struct {
	AuthorName  string
	AuthorEmail string
	// Remote, when set, receives a push of every committed branch.
	Remote string
}

// GitBranchApplier commits a change descriptor's files onto a branch of a
// single repository. The worktree is shared, so applies are serialized.
type GitBranchApplier struct {
	repo *git.Repository
	cfg  GitBranchConfig
	now  func() time.Time

	mu sync.Mutex
}

var _ domain.TargetApplier = (*GitBranchApplier)(nil)

func NewGitBranchApplier(repo *git.Repository, cfg GitBranchConfig) *GitBranchApplier {
	return &GitBranchApplier{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

// OpenGitBranchApplier opens the non-bare repository at path.
func OpenGitBranchApplier(repoPath string, cfg GitBranchConfig) (*GitBranchApplier, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", repoPath, err)
	}
	return NewGitBranchApplier(repo, cfg), nil
}

func (a *GitBranchApplier) Apply(ctx context.Context, branch string, change domain.ChangeDescriptor) (*domain.ApplyResult, error) {
	if len(change.Files) == 0 {
		return nil, ErrNoFileChanges
	}
	for _, f := range change.Files {
		if err := validatePath(f.Path); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	wt, err := a.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	if _, err := a.repo.Reference(ref, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
		}
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Force: true}); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", branch, err)
	}

	fs := wt.Filesystem
	for _, f := range change.Files {
		if dir := path.Dir(f.Path); dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
		if err := util.WriteFile(fs, f.Path, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Path, err)
		}
		if _, err := wt.Add(f.Path); err != nil {
			return nil, fmt.Errorf("stage %s: %w", f.Path, err)
		}
	}

	hash, err := wt.Commit(commitMessage(change), &git.CommitOptions{
		Author: a.signature(change),
	})
	if err != nil {
		if !errors.Is(err, git.ErrEmptyCommit) {
			return nil, fmt.Errorf("commit on %s: %w", branch, err)
		}
		// Content already matches, typically a retry after a partial failure.
		head, headErr := a.repo.Reference(ref, true)
		if headErr != nil {
			return nil, fmt.Errorf("resolve branch %s: %w", branch, headErr)
		}
		hash = head.Hash()
		slog.DebugContext(ctx, "branch already up to date",
			slog.String("branch", branch),
			slog.String("commit", hash.String()),
		)
	}

	if a.cfg.Remote != "" {
		refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
		err := a.repo.PushContext(ctx, &git.PushOptions{
			RemoteName: a.cfg.Remote,
			RefSpecs:   []gitconfig.RefSpec{refSpec},
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, fmt.Errorf("push %s to %s: %w", branch, a.cfg.Remote, err)
		}
	}

	return &domain.ApplyResult{CommittedRef: hash.String()}, nil
}

func (a *GitBranchApplier) signature(change domain.ChangeDescriptor) *object.Signature {
	name, email := a.cfg.AuthorName, a.cfg.AuthorEmail
	if change.Author != "" {
		name = change.Author
	}
	if change.AuthorEmail != "" {
		email = change.AuthorEmail
	}
	return &object.Signature{Name: name, Email: email, When: a.now()}
}

func commitMessage(change domain.ChangeDescriptor) string {
	if msg := strings.TrimSpace(change.Description); msg != "" {
		return msg
	}
	return "bulk update"
}

func validatePath(p string) error {
	if p == "" || path.IsAbs(p) || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}
