// Package git reads the GitLab project of the current working copy from
// its remotes.
package git

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

const DefaultRemote = "origin"

var ErrNoProjectPath = errors.New("cannot infer project path from remote")

type Client struct {
	worktree string
}

func NewClient() (*Client, error) {
	out, err := runInDir("", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not in git repository: %w", err)
	}
	return &Client{worktree: strings.TrimSpace(out)}, nil
}

func (c *Client) Root() string {
	return c.worktree
}

func (c *Client) CurrentBranch() (string, error) {
	out, err := runInDir(c.worktree, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", fmt.Errorf("detached HEAD state")
	}
	return branch, nil
}

func (c *Client) RemoteURL(remote string) (string, error) {
	out, err := runInDir(c.worktree, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", remote, err)
	}
	return strings.TrimSpace(out), nil
}

// ProjectPath returns the "group/project" path of the origin remote.
func (c *Client) ProjectPath() (string, error) {
	remote, err := c.RemoteURL(DefaultRemote)
	if err != nil {
		return "", err
	}
	return ParseProjectPath(remote)
}

// ParseProjectPath extracts the namespaced project path from an SSH
// ("git@host:group/project.git") or URL style remote.
func ParseProjectPath(remote string) (string, error) {
	remote = strings.TrimSpace(remote)

	var path string
	if strings.Contains(remote, "://") {
		u, err := url.Parse(remote)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrNoProjectPath, remote, err)
		}
		path = u.Path
	} else if _, after, ok := strings.Cut(remote, ":"); ok {
		path = after
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	if !strings.Contains(path, "/") {
		return "", fmt.Errorf("%w: %q", ErrNoProjectPath, remote)
	}
	return path, nil
}

func runInDir(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s", strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}
