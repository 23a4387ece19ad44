package change

import (
	"errors"
	"fmt"
)

// ErrPatchesConflict is returned by Update when both Changes carry different
// patches. Two pending patches cannot be merged onto one Change.
var ErrPatchesConflict = errors.New("cannot combine two different patches")

// ErrFileNotFound is returned by SourceControl.FileContents when the file does
// not exist at the requested commit.
var ErrFileNotFound = errors.New("file not found")

// NonLinearError means bisection is not defined for the given pair.
type NonLinearError struct {
	Reason string
}

func (e *NonLinearError) Error() string {
	return "non-linear: " + e.Reason
}

// NonLinear creates a NonLinearError.
func NonLinear(format string, args ...interface{}) error {
	return &NonLinearError{Reason: fmt.Sprintf(format, args...)}
}

// IsNonLinear returns true if err is or wraps a NonLinearError.
func IsNonLinear(err error) bool {
	var e *NonLinearError
	return errors.As(err, &e)
}

// UnknownRepositoryError is returned when a repository name is not
// registered.
type UnknownRepositoryError struct {
	Repository string
}

func (e *UnknownRepositoryError) Error() string {
	return fmt.Sprintf("unknown repository %q", e.Repository)
}

// UnknownCommitError is returned when a git hash does not exist in its
// repository.
type UnknownCommitError struct {
	Repository string
	GitHash    string
}

func (e *UnknownCommitError) Error() string {
	return fmt.Sprintf("unknown commit %s in repository %q", e.GitHash, e.Repository)
}

// InvalidChangeError is returned when constructing a Change which violates
// its invariants.
type InvalidChangeError struct {
	Reason string
}

func (e *InvalidChangeError) Error() string {
	return "invalid change: " + e.Reason
}
