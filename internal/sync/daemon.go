package sync

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Daemon polls repositories and feeds changed trees through the
// orchestrator. Git HEAD comparison is the whole-repo change signal;
// per-file content hashing inside the orchestrator then skips the files
// that did not actually change.
type Daemon struct {
	repos        []RepoWatch
	interval     time.Duration
	orchestrator *Orchestrator
	logger       *slog.Logger
	headHash     map[string]string // repo name -> last known HEAD hash
}

// RepoWatch defines a repository to watch.
type RepoWatch struct {
	Name    string
	Path    string
	Include []string
	Exclude []string
}

// NewDaemon creates a new sync daemon.
func NewDaemon(repos []RepoWatch, interval time.Duration, o *Orchestrator, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		repos:        repos,
		interval:     interval,
		orchestrator: o,
		logger:       logger,
		headHash:     make(map[string]string),
	}
}

// Run starts the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("starting sync daemon", "interval", d.interval, "repos", len(d.repos))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Initial sync
	d.syncAll(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon shutting down")
			return ctx.Err()
		case <-ticker.C:
			d.syncAll(ctx)
		}
	}
}

func (d *Daemon) syncAll(ctx context.Context) {
	for _, repo := range d.repos {
		if err := d.syncRepo(ctx, repo); err != nil {
			d.logger.Error("sync failed", "repo", repo.Name, "error", err)
		}
	}
}

func (d *Daemon) syncRepo(ctx context.Context, repo RepoWatch) error {
	d.logger.Debug("checking repo", "name", repo.Name)

	currentHead, err := d.getGitHead(repo.Path)
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}

	cachedHead := d.headHash[repo.Name]
	if currentHead == cachedHead {
		d.logger.Debug("repo unchanged", "name", repo.Name)
		return nil
	}

	d.logger.Info("repo changed, syncing", "name", repo.Name,
		"old_head", truncateHash(cachedHead), "new_head", truncateHash(currentHead))

	synced := 0
	err = filepath.WalkDir(repo.Path, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			name := entry.Name()
			if name == ".git" || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesPatterns(path, repo.Include, repo.Exclude) {
			return nil
		}
		if _, err := d.orchestrator.Sync(ctx, Request{Path: path, Action: ActionEdit, Summary: "daemon sync"}); err != nil {
			d.logger.Warn("daemon: file sync failed", "path", path, "error", err)
			return nil
		}
		synced++
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking repo: %w", err)
	}

	d.logger.Info("sync complete", "repo", repo.Name, "files", synced)
	d.headHash[repo.Name] = currentHead
	return nil
}

// matchesPatterns applies simple suffix-based include/exclude rules; an
// empty include list admits every file with a detectable language.
func matchesPatterns(path string, include, exclude []string) bool {
	for _, pat := range exclude {
		if strings.Contains(path, strings.TrimSuffix(strings.TrimPrefix(pat, "**/"), "/**")) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if strings.HasSuffix(path, strings.TrimPrefix(pat, "**/*")) {
			return true
		}
	}
	return false
}

// getGitHead returns the current HEAD commit hash.
func (d *Daemon) getGitHead(repoPath string) (string, error) {
	// Try git rev-parse first (most reliable)
	cmd := exec.Command("git", "-C", repoPath, "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err == nil {
		return strings.TrimSpace(string(output)), nil
	}

	// Fallback: read .git/HEAD directly
	headPath := filepath.Join(repoPath, ".git", "HEAD")
	headData, err := os.ReadFile(headPath)
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(string(headData))

	// If HEAD points to a ref, resolve it
	if strings.HasPrefix(content, "ref: ") {
		refPath := strings.TrimPrefix(content, "ref: ")
		refFile := filepath.Join(repoPath, ".git", refPath)
		refData, err := os.ReadFile(refFile)
		if err != nil {
			// Might be a packed ref, hash the ref name as fallback
			h := sha256.Sum256([]byte(content))
			return fmt.Sprintf("%x", h[:8]), nil
		}
		return strings.TrimSpace(string(refData)), nil
	}

	// Detached HEAD, content is the hash
	return content, nil
}

func truncateHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
