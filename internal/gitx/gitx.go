// Package gitx exposes the two version-control operations the change oracle
// depends on: the two most recent commits reachable from the working tree,
// and a file's blob hash at a given revision. Every lookup failure here is
// classified so callers can fall back to "assume changed" instead of failing
// the run.
package gitx

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoHistory marks repositories without a comparable commit pair: first
// commit, shallow clone, or no repository at all. Callers treat it as
// "assume changed", never as fatal.
var ErrNoHistory = errors.New("no comparable commit history")

// ErrNotAtRevision marks a file that does not exist in a commit's tree.
var ErrNotAtRevision = errors.New("file not present at revision")

// Client reads history from a single working tree, opened once per run.
type Client struct {
	repo *git.Repository
}

// Open opens the repository containing workdir. A missing repository is
// reported as ErrNoHistory so the oracle can degrade conservatively.
func Open(workdir string) (*Client, error) {
	repo, err := git.PlainOpenWithOptions(workdir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNoHistory, workdir)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return &Client{repo: repo}, nil
}

// CommitPair is the fixed pair of revisions a run diffs against, captured
// once and reused for every unit.
type CommitPair struct {
	Head   *object.Commit
	Parent *object.Commit
}

// LastTwoCommits resolves HEAD and its first parent. Any condition that
// prevents resolving the pair (detached oddities, a single root commit,
// shallow history) is reported as ErrNoHistory.
func (c *Client) LastTwoCommits() (*CommitPair, error) {
	ref, err := c.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve HEAD: %v", ErrNoHistory, err)
	}

	head, err := c.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: read HEAD commit: %v", ErrNoHistory, err)
	}

	if head.NumParents() == 0 {
		return nil, fmt.Errorf("%w: %s is a root commit", ErrNoHistory, short(head.Hash))
	}

	parent, err := head.Parent(0)
	if err != nil {
		// Shallow clones record parent hashes whose objects are absent.
		return nil, fmt.Errorf("%w: read parent of %s: %v", ErrNoHistory, short(head.Hash), err)
	}

	return &CommitPair{Head: head, Parent: parent}, nil
}

// FileHashAt returns the blob hash of a repository-relative path at a commit.
// The blob bytes themselves never need to be read: equal hashes mean equal
// content.
func (c *Client) FileHashAt(commit *object.Commit, relPath string) (string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("read tree of %s: %w", short(commit.Hash), err)
	}

	entry, err := tree.FindEntry(relPath)
	if err != nil {
		if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return "", fmt.Errorf("%w: %s at %s", ErrNotAtRevision, relPath, short(commit.Hash))
		}
		return "", fmt.Errorf("find %s at %s: %w", relPath, short(commit.Hash), err)
	}

	return entry.Hash.String(), nil
}

func short(h plumbing.Hash) string {
	return h.String()[:8]
}
