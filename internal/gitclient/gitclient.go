// Package gitclient implements a two-tier git cache: a bare "database" clone per
// repository URL, and a working-tree checkout per resolved commit. It is purely
// local-filesystem; the cgxcache layout is the sole cache authority.
package gitclient

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// Client resolves symbolic git selectors to commits and materializes working-tree
// checkouts, fronted by cgxcache's atomic publication primitives.
type Client struct {
	manager  *cgxcache.Manager
	reporter reporter.MessageReporter
	offline  bool
}

// New constructs a Client. rep may be nil (events are then discarded).
func New(manager *cgxcache.Manager, rep reporter.MessageReporter, offline bool) *Client {
	if rep == nil {
		rep = reporter.Nop{}
	}
	return &Client{manager: manager, reporter: rep, offline: offline}
}

// ResolveRef takes a possibly-symbolic selector and returns (checkout-path,
// commit-hash), creating and reusing the bare database and working-tree caches as
// needed.
func (c *Client) ResolveRef(ctx context.Context, url string, sel spec.Selector) (checkoutPath, commit string, err error) {
	dbPath := c.manager.GitDBPath(url)
	shallow := sel.Kind == spec.Branch || sel.Kind == spec.Tag

	if err := c.ensureDB(ctx, dbPath, url, shallow); err != nil {
		return "", "", err
	}
	repo, err := git.PlainOpen(dbPath)
	if err != nil {
		return "", "", cgxerr.Wrap(err, cgxerr.GitTransport)
	}

	hash, err := c.resolveSelector(ctx, repo, dbPath, url, sel)
	if err != nil {
		return "", "", err
	}

	checkoutPath = c.manager.GitCheckoutPath(url, hash)
	if _, statErr := os.Stat(checkoutPath); statErr == nil {
		return checkoutPath, hash, nil
	}

	if err := c.checkoutCommit(ctx, dbPath, checkoutPath, hash); err != nil {
		return "", "", err
	}
	return checkoutPath, hash, nil
}

// ensureDB creates the bare database clone for url if it does not yet exist. A losing
// racer in a concurrent create is tolerated the same way the rest of the cache does:
// clean up and adopt the winner's directory.
func (c *Client) ensureDB(ctx context.Context, dbPath, url string, shallow bool) error {
	if _, err := os.Stat(dbPath); err == nil {
		return nil
	}
	if c.offline {
		return cgxerr.New(cgxerr.OfflineMode)
	}
	tmp := dbPath + ".tmp-clone"
	_ = os.RemoveAll(tmp)
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, filepath.Dir(tmp))
	}
	opts := &git.CloneOptions{URL: url, Tags: git.AllTags}
	if shallow {
		opts.Depth = 1
	}
	if _, err := git.PlainCloneContext(ctx, tmp, true, opts); err != nil {
		_ = os.RemoveAll(tmp)
		return cgxerr.Wrap(err, cgxerr.GitTransport)
	}
	if err := os.Rename(tmp, dbPath); err != nil {
		_ = os.RemoveAll(tmp)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			return nil // another process won the race
		}
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dbPath)
	}
	return nil
}

// resolveSelector turns sel into a concrete commit hash, fetching additional data from
// the remote when a tag is missing from the (possibly shallow) bare database.
func (c *Client) resolveSelector(ctx context.Context, repo *git.Repository, dbPath, url string, sel spec.Selector) (string, error) {
	switch sel.Kind {
	case spec.Commit:
		hash := plumbing.NewHash(sel.Value)
		if _, err := repo.CommitObject(hash); err != nil {
			if !c.offline {
				if ferr := c.fetchFull(ctx, repo); ferr != nil {
					return "", ferr
				}
				if _, err := repo.CommitObject(hash); err == nil {
					return sel.Value, nil
				}
			}
			return "", cgxerr.Wrap(err, cgxerr.CheckoutCommitFailed)
		}
		return sel.Value, nil
	case spec.DefaultBranch:
		ref, err := repo.Head()
		if err != nil {
			return "", cgxerr.Wrap(err, cgxerr.GitTransport)
		}
		return ref.Hash().String(), nil
	case spec.Branch:
		ref, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, sel.Value), true)
		if err != nil {
			ref, err = repo.Reference(plumbing.NewBranchReferenceName(sel.Value), true)
		}
		if err != nil {
			return "", cgxerr.New(cgxerr.RefMismatch)
		}
		return ref.Hash().String(), nil
	case spec.Tag:
		ref, err := repo.Reference(plumbing.NewTagReferenceName(sel.Value), true)
		if err == nil {
			return peelTag(repo, ref.Hash()).String(), nil
		}
		// A tag missing from the (possibly shallow) clone gets one refetch before
		// the lookup is declared a mismatch.
		if c.offline {
			return "", cgxerr.New(cgxerr.OfflineMode)
		}
		if ferr := c.fetchFull(ctx, repo); ferr != nil {
			return "", ferr
		}
		ref, err = repo.Reference(plumbing.NewTagReferenceName(sel.Value), true)
		if err != nil {
			return "", cgxerr.New(cgxerr.RefMismatch)
		}
		return peelTag(repo, ref.Hash()).String(), nil
	default:
		return "", errors.Errorf("unknown selector kind %v", sel.Kind)
	}
}

// peelTag follows an annotated tag object through to the commit it tags; a lightweight
// tag's hash already is the commit and passes through unchanged.
func peelTag(repo *git.Repository, h plumbing.Hash) plumbing.Hash {
	if tag, err := repo.TagObject(h); err == nil {
		return tag.Target
	}
	return h
}

// fetchFull deepens a shallow bare database to full history, used when a requested
// commit or tag is not reachable from the initial shallow clone.
func (c *Client) fetchFull(ctx context.Context, repo *git.Repository) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*", "+refs/tags/*:refs/tags/*"},
		Tags:     git.AllTags,
		Depth:    0,
		Force:    true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return cgxerr.Wrap(err, cgxerr.GitTransport)
	}
	return nil
}

// checkoutCommit extracts a working tree at hash from the bare database into a fresh
// temp sibling of checkoutPath, then atomically publishes it. The working tree is
// produced by cloning the bare database itself (a local, file-based clone), since go-git
// has no native "git worktree add from bare repo" API.
func (c *Client) checkoutCommit(ctx context.Context, dbPath, checkoutPath, hash string) error {
	tmp := checkoutPath + ".tmp-checkout"
	_ = os.RemoveAll(tmp)
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, filepath.Dir(tmp))
	}
	repo, err := git.PlainCloneContext(ctx, tmp, false, &git.CloneOptions{
		URL:        dbPath,
		NoCheckout: true,
	})
	if err != nil {
		_ = os.RemoveAll(tmp)
		return cgxerr.Wrap(err, cgxerr.GitTransport)
	}
	wt, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmp)
		return cgxerr.Wrap(err, cgxerr.CheckoutCommitFailed)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(hash), Force: true}); err != nil {
		_ = os.RemoveAll(tmp)
		return cgxerr.Wrap(err, cgxerr.CheckoutCommitFailed)
	}
	if err := os.Rename(tmp, checkoutPath); err != nil {
		_ = os.RemoveAll(tmp)
		if _, statErr := os.Stat(checkoutPath); statErr == nil {
			return nil
		}
		return cgxerr.WrapPath(err, cgxerr.IOFailure, checkoutPath)
	}
	return nil
}
