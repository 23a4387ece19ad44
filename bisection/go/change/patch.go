package change

import "fmt"

// Patch identifies one revision of a pending code review.
type Patch struct {
	// Server is the review host URL, eg. https://chromium-review.googlesource.com.
	Server string `json:"server"`

	ChangeID   string `json:"change_id"`
	RevisionID string `json:"revision_id"`
}

func (p Patch) String() string {
	return fmt.Sprintf("%s/c/%s/%s", p.Server, p.ChangeID, p.RevisionID)
}

// equalPatches compares two optional patches by value.
func equalPatches(a, b *Patch) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
