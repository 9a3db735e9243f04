// Package gitrepo reads the state of the deployed working copy.
package gitrepo

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

// Repo is a working copy on disk. Dir may be any directory inside it.
type Repo struct {
	Dir string
}

// New returns a Repo for dir.
func New(dir string) *Repo {
	return &Repo{Dir: dir}
}

func (r *Repo) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(r.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", r.Dir, err)
	}
	return repo, nil
}

// Head returns the commit hash HEAD points to.
func (r *Repo) Head() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// Branch returns the checked out branch name, or "" for a detached HEAD.
func (r *Repo) Branch() (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	if !ref.Name().IsBranch() {
		return "", nil
	}
	return ref.Name().Short(), nil
}
