package model

import "fmt"

// RepoRef identifies a remote repository by owner and name. It is immutable
// once a pull request is selected; selecting a different repository
// invalidates all PR-scoped state.
type RepoRef struct {
	Owner string
	Name  string
}

// FullName returns the "owner/name" form used by the GitHub API.
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// Validate returns an error when either component is empty.
func (r RepoRef) Validate() error {
	if r.Owner == "" || r.Name == "" {
		return fmt.Errorf("invalid repository reference %q: owner and name are required", r.FullName())
	}
	return nil
}
