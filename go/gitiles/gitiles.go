package gitiles

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.skia.org/bisection/go/httputils"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/vcsinfo"
)

/*
	Utilities for working with Gitiles.
*/

const (
	COMMIT_URL        = "%s/+/%s?format=JSON"
	DATE_FORMAT_NO_TZ = "Mon Jan 02 15:04:05 2006"
	DATE_FORMAT_TZ    = "Mon Jan 02 15:04:05 2006 -0700"
	DOWNLOAD_URL      = "%s/+/%s/%s?format=TEXT"
	LOG_URL           = "%s/+log/%s..%s?format=JSON"

	// Gitiles prefixes JSON responses with this line to prevent XSSI.
	jsonPrefix = ")]}'\n"
)

// ErrNotFound is returned when Gitiles responds 404.
var ErrNotFound = errors.New("gitiles: not found")

// Repo is an object used for interacting with a single Git repo using Gitiles.
type Repo struct {
	client *http.Client
	URL    string
}

// NewRepo creates and returns a new Repo object.
func NewRepo(url string, c *http.Client) *Repo {
	if c == nil {
		c = httputils.NewTimeoutClient()
	}
	return &Repo{
		client: c,
		URL:    strings.TrimSuffix(url, "/"),
	}
}

func (r *Repo) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, skerr.Wrapf(err, "requesting %s", url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, skerr.Wrapf(ErrNotFound, "requesting %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, skerr.Fmt("Request to %s got status %q", url, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, skerr.Wrapf(err, "failed to read response")
	}
	return b, nil
}

func (r *Repo) getJSON(ctx context.Context, url string, dst interface{}) error {
	b, err := r.get(ctx, url)
	if err != nil {
		return err
	}
	b = []byte(strings.TrimPrefix(string(b), jsonPrefix))
	if err := json.Unmarshal(b, dst); err != nil {
		return skerr.Wrapf(err, "failed to decode response")
	}
	return nil
}

// ReadFileAtRef reads the given file at the given ref. Returns an error
// wrapping ErrNotFound if the file does not exist.
func (r *Repo) ReadFileAtRef(ctx context.Context, srcPath, ref string) ([]byte, error) {
	b, err := r.get(ctx, fmt.Sprintf(DOWNLOAD_URL, r.URL, ref, srcPath))
	if err != nil {
		return nil, err
	}
	rv, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, strings.NewReader(string(b))))
	if err != nil {
		return nil, skerr.Wrapf(err, "decoding %s at %s", srcPath, ref)
	}
	return rv, nil
}

type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Time  string `json:"time"`
}

type Commit struct {
	Commit    string   `json:"commit"`
	Parents   []string `json:"parents"`
	Author    *Author  `json:"author"`
	Committer *Author  `json:"committer"`
	Message   string   `json:"message"`
}

type Log struct {
	Log  []*Commit `json:"log"`
	Next string    `json:"next,omitempty"`
}

func commitToLongCommit(c *Commit) (*vcsinfo.LongCommit, error) {
	var ts time.Time
	var err error
	if c.Committer != nil {
		if strings.Contains(c.Committer.Time, " +") || strings.Contains(c.Committer.Time, " -") {
			ts, err = time.Parse(DATE_FORMAT_TZ, c.Committer.Time)
		} else {
			ts, err = time.Parse(DATE_FORMAT_NO_TZ, c.Committer.Time)
		}
		if err != nil {
			return nil, skerr.Wrapf(err, "parsing commit time of %s", c.Commit)
		}
	}

	split := strings.Split(c.Message, "\n")
	subject := split[0]
	split = split[1:]
	if len(split) > 0 && split[0] == "" {
		split = split[1:]
	}
	author := ""
	if c.Author != nil {
		author = fmt.Sprintf("%s (%s)", c.Author.Name, c.Author.Email)
	}
	return &vcsinfo.LongCommit{
		ShortCommit: &vcsinfo.ShortCommit{
			Hash:    c.Commit,
			Author:  author,
			Subject: subject,
		},
		Parents:   c.Parents,
		Body:      strings.Join(split, "\n"),
		Timestamp: ts,
	}, nil
}

// Details returns a vcsinfo.LongCommit for the given commit.
func (r *Repo) Details(ctx context.Context, ref string) (*vcsinfo.LongCommit, error) {
	var c Commit
	if err := r.getJSON(ctx, fmt.Sprintf(COMMIT_URL, r.URL, ref), &c); err != nil {
		return nil, err
	}
	return commitToLongCommit(&c)
}

// Log returns Gitiles' equivalent to "git log" for the given start and end
// commits, newest first. Follows pagination until the log is exhausted.
func (r *Repo) Log(ctx context.Context, from, to string) ([]*vcsinfo.LongCommit, error) {
	rv := []*vcsinfo.LongCommit{}
	url := fmt.Sprintf(LOG_URL, r.URL, from, to)
	next := ""
	for {
		pageURL := url
		if next != "" {
			pageURL += "&s=" + next
		}
		var l Log
		if err := r.getJSON(ctx, pageURL, &l); err != nil {
			return nil, err
		}
		for _, c := range l.Log {
			vc, err := commitToLongCommit(c)
			if err != nil {
				return nil, err
			}
			rv = append(rv, vc)
		}
		if l.Next == "" {
			return rv, nil
		}
		next = l.Next
	}
}

// LogLinear is equivalent to "git log --first-parent --ancestry-path from..to",
// ie. it only returns commits which are on the direct path from A to B, and
// only on the "main" branch. Returns an empty slice if from is not a
// first-parent ancestor of to.
func (r *Repo) LogLinear(ctx context.Context, from, to string) ([]*vcsinfo.LongCommit, error) {
	commits, err := r.Log(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]*vcsinfo.LongCommit, len(commits))
	for _, c := range commits {
		byHash[c.Hash] = c
	}
	rv := []*vcsinfo.LongCommit{}
	for hash := to; hash != from; {
		c, ok := byHash[hash]
		if !ok {
			// We fell off the end of the log without reaching from.
			return []*vcsinfo.LongCommit{}, nil
		}
		rv = append(rv, c)
		hash = c.FirstParent()
	}
	return rv, nil
}
