package state

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	DefaultNodeRepository     = "https://github.com/kaspanet/rusty-kaspa"
	DefaultResolverRepository = "https://github.com/aspectron/kaspa-resolver"
	defaultBranch             = "master"
)

var ErrInvalidOrigin = errors.New("invalid repository")

// Origin is the upstream source a managed service is built from
type Origin struct {
	Repository string  `json:"repository" validate:"required,repository"`
	Branch     *string `json:"branch,omitempty" validate:"omitempty,branch"`
}

// NewOrigin validates the repository reference. An empty branch means
// the repository default
func NewOrigin(repository, branch string) (Origin, error) {
	origin := Origin{Repository: strings.TrimSpace(repository)}

	if b := strings.TrimSpace(branch); b != "" {
		origin.Branch = &b
	}

	if err := origin.Validate(); err != nil {
		return Origin{}, err
	}

	return origin, nil
}

func DefaultNodeOrigin() Origin {
	return Origin{Repository: DefaultNodeRepository}
}

func DefaultResolverOrigin() Origin {
	return Origin{Repository: DefaultResolverRepository}
}

func isRepository(repository string) bool {
	parts := strings.Split(strings.TrimSuffix(repository, "/"), "/")

	if len(parts) < 3 || strings.ContainsAny(repository, " \t\n") {
		return false
	}

	return parts[len(parts)-1] != "" && parts[len(parts)-2] != ""
}

func isBranch(branch string) bool {
	return branch != "" && !strings.HasPrefix(branch, "-") &&
		!strings.ContainsAny(branch, " \t\n~^:?*[\\") && !strings.Contains(branch, "..")
}

func (o Origin) Validate() error {
	if !isRepository(o.Repository) {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, o.Repository)
	}

	if o.Branch != nil && !isBranch(*o.Branch) {
		return fmt.Errorf("%w: branch %q", ErrInvalidOrigin, *o.Branch)
	}

	return nil
}

// BranchName is the configured branch or master
func (o Origin) BranchName() string {
	if o.Branch == nil {
		return defaultBranch
	}

	return *o.Branch
}

func (o Origin) segments() (org, name string) {
	repository := strings.TrimSuffix(strings.TrimSuffix(o.Repository, "/"), ".git")
	name = path.Base(repository)
	org = path.Base(path.Dir(repository))
	return org, name
}

// Name of the repository, e.g. rusty-kaspa
func (o Origin) Name() string {
	_, name := o.segments()
	return name
}

// Folder is the checkout location relative to the service source
// root: <organisation>/<branch>
func (o Origin) Folder() string {
	org, _ := o.segments()
	return path.Join(org, o.BranchName())
}

func (o Origin) String() string {
	return fmt.Sprintf("%s@%s", o.Repository, o.BranchName())
}
