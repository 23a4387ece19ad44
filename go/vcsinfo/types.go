package vcsinfo

import (
	"regexp"
	"strconv"
	"time"
)

var commitPositionRegex = regexp.MustCompile(`(?m)^Cr-Commit-Position: .*@\{#(\d+)\}\s*$`)

// ShortCommit stores the hash, author, and subject of a git commit.
type ShortCommit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
}

// LongCommit gives more detailed information about a commit.
type LongCommit struct {
	*ShortCommit
	Parents   []string  `json:"parent"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLongCommit() *LongCommit {
	return &LongCommit{ShortCommit: &ShortCommit{}}
}

// FirstParent returns the first parent of the commit, or "" for a root
// commit.
func (c *LongCommit) FirstParent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

// CommitPosition returns the number from the Cr-Commit-Position footer in the
// commit body, or 0 if there is none.
func (c *LongCommit) CommitPosition() int {
	m := commitPositionRegex.FindStringSubmatch(c.Body)
	if m == nil {
		return 0
	}
	pos, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return pos
}
