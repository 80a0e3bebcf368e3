// Package github resolves pull-request references and fetches PR metadata
// through the gh CLI.
package github

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnavailable is wrapped into errors returned when the gh binary could
// not be invoked at all, as opposed to gh running and reporting failure.
var ErrUnavailable = errors.New("gh CLI not found; install it from https://cli.github.com/")

// PRRef identifies a pull request by repository and number.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

func (p PRRef) FullName() string { return p.Owner + "/" + p.Repo }

// Metadata is what warren needs from a pull request to build a review
// environment.
type Metadata struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HeadRef string `json:"headRefName"`
	URL     string `json:"url"`
	Author  struct {
		Login string `json:"login"`
	} `json:"author"`
}

var (
	httpsRepoRe = regexp.MustCompile(`^https?://github\.com/([^/]+/[^/]+?)(?:\.git)?/?$`)
	prURLRe     = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:/.*)?$`)
	shorthandRe = regexp.MustCompile(`^([a-zA-Z0-9_-]+)#(\d+)$`)
)

// ParseRepoURL extracts "owner/repo" from an SSH or HTTPS GitHub clone
// URL, or returns empty when the URL is not a GitHub repository.
func ParseRepoURL(url string) string {
	if rest, ok := strings.CutPrefix(url, "git@github.com:"); ok {
		rest = strings.TrimSuffix(rest, ".git")
		if parts := strings.Split(rest, "/"); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return rest
		}
		return ""
	}
	if m := httpsRepoRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// ParsePRURL parses a GitHub pull-request URL, with or without a trailing
// /files or /commits segment.
func ParsePRURL(url string) (PRRef, bool) {
	m := prURLRe.FindStringSubmatch(url)
	if m == nil {
		return PRRef{}, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return PRRef{}, false
	}
	return PRRef{Owner: m[1], Repo: m[2], Number: n}, true
}

// ParsePRShorthand resolves "repo#123" against the configured repository
// catalog (name to clone URL).
func ParsePRShorthand(shorthand string, repoURLs map[string]string) (PRRef, bool) {
	m := shorthandRe.FindStringSubmatch(shorthand)
	if m == nil {
		return PRRef{}, false
	}
	url, ok := repoURLs[m[1]]
	if !ok {
		return PRRef{}, false
	}
	full := ParseRepoURL(url)
	if full == "" {
		return PRRef{}, false
	}
	parts := strings.Split(full, "/")
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return PRRef{}, false
	}
	return PRRef{Owner: parts[0], Repo: parts[1], Number: n}, true
}

// ParsePRReference accepts either a full PR URL or a repo#number
// shorthand.
func ParsePRReference(reference string, repoURLs map[string]string) (PRRef, bool) {
	if ref, ok := ParsePRURL(reference); ok {
		return ref, true
	}
	if strings.Contains(reference, "#") {
		return ParsePRShorthand(reference, repoURLs)
	}
	return PRRef{}, false
}

// Client fetches PR metadata via the gh CLI.
type Client struct{}

func NewClient() *Client { return &Client{} }

// PRMetadata queries gh for the pull request's title, author, and head
// branch.
func (c *Client) PRMetadata(ref PRRef) (Metadata, error) {
	out, err := runGH("pr", "view", strconv.Itoa(ref.Number),
		"--repo", ref.FullName(),
		"--json", "number,title,author,headRefName,url")
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	if err := json.Unmarshal([]byte(out), &md); err != nil {
		return Metadata{}, fmt.Errorf("parse PR metadata: %w", err)
	}
	return md, nil
}

func runGH(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return "", fmt.Errorf("gh %s failed: %s", args[0], strings.TrimSpace(errBuf.String()))
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.String(), nil
}
