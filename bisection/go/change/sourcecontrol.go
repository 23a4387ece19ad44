package change

import "context"

// CommitInfo is the derived information about a Commit.
type CommitInfo struct {
	// Position is monotonic within a repository. Zero means the backend
	// cannot tell.
	Position int

	// RepositoryURL is the URL the repository name resolves to.
	RepositoryURL string
}

// SourceControl answers commit and file questions about registered
// repositories. Implementations perform blocking I/O and must honor ctx.
type SourceControl interface {
	// ResolveCommit returns the position and URL of the given commit. Fails
	// with UnknownRepositoryError or UnknownCommitError.
	ResolveCommit(ctx context.Context, repository, gitHash string) (CommitInfo, error)

	// CommitRange returns the hashes strictly between fromHash and toHash on
	// the first-parent line, oldest first. Fails with NonLinearError if
	// fromHash is not a first-parent ancestor of toHash.
	CommitRange(ctx context.Context, repository, fromHash, toHash string) ([]string, error)

	// FileContents returns the file at path as of gitHash. Fails with an
	// error wrapping ErrFileNotFound if there is no such file.
	FileContents(ctx context.Context, repositoryURL, gitHash, path string) ([]byte, error)
}
