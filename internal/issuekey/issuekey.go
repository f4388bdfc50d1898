// Package issuekey finds Jira issue keys in free-form commit text.
package issuekey

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Ilia01/deliver/internal/models"
)

// DefaultPrefix is the Jira project key used when none is configured.
const DefaultPrefix = "EFU"

type Extractor struct {
	pattern *regexp.Regexp
}

// New builds an extractor matching "<prefix>-<digits>". The match is
// case-sensitive and not anchored to word boundaries.
func New(prefix string) (*Extractor, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	pattern, err := regexp.Compile(regexp.QuoteMeta(prefix) + `-\d+`)
	if err != nil {
		return nil, fmt.Errorf("compile issue key pattern: %w", err)
	}
	return &Extractor{pattern: pattern}, nil
}

// Extract returns the sorted, deduplicated keys found in message and title.
func (e *Extractor) Extract(message, title string) []string {
	seen := make(map[string]struct{})
	e.collect(seen, message)
	e.collect(seen, title)
	return sortedKeys(seen)
}

// FromCommits merges the keys of every commit into one sorted set.
func (e *Extractor) FromCommits(commits []models.Commit) []string {
	seen := make(map[string]struct{})
	for _, commit := range commits {
		e.collect(seen, commit.Message)
		e.collect(seen, commit.Title)
	}
	return sortedKeys(seen)
}

func (e *Extractor) collect(seen map[string]struct{}, text string) {
	for _, match := range e.pattern.FindAllString(text, -1) {
		seen[match] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
