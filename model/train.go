package model

import (
	"fmt"
	"time"
)

// VersioningStrategy controls which term a plain (non-major) release
// bumps: semver bumps minor, patch-only bumps patch.
type VersioningStrategy string

const (
	StrategySemver    VersioningStrategy = "semver"
	StrategyPatchOnly VersioningStrategy = "patch_only"
)

// BranchingStrategy controls how release branches are cut.
type BranchingStrategy string

const (
	BranchingAlmostTrunk     BranchingStrategy = "almost_trunk"
	BranchingReleaseBackmerge BranchingStrategy = "release_backmerge"
)

type TrainStatus string

const (
	TrainDraft    TrainStatus = "draft"
	TrainActive   TrainStatus = "active"
	TrainInactive TrainStatus = "inactive"
)

// Train is the per-app release configuration and the single source of
// truth for the current version. The current version is monotonically
// non-decreasing; only a finished release may bump it.
type Train struct {
	ID                 string             `json:"id"`
	AppID              string             `json:"appId"`
	Name               string             `json:"name"`
	Status             TrainStatus        `json:"status"`
	VersioningStrategy VersioningStrategy `json:"versioningStrategy"`
	BranchingStrategy  BranchingStrategy  `json:"branchingStrategy"`
	WorkingBranch      string             `json:"workingBranch"`
	CurrentVersion     string             `json:"currentVersion"`

	BuildQueueEnabled bool          `json:"buildQueueEnabled"`
	BuildQueueSize    int           `json:"buildQueueSize"`
	BuildQueueWait    time.Duration `json:"buildQueueWait"`

	CIProvider string `json:"ciProvider"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewTrain validates the seed version up front so bump operations can
// never fail on user input.
func NewTrain(id, appID, name, seedVersion string, versioning VersioningStrategy, branching BranchingStrategy, workingBranch string, now time.Time) (*Train, error) {
	if _, err := ParseVersion(seedVersion); err != nil {
		return nil, err
	}
	if versioning == "" {
		versioning = StrategySemver
	}
	if branching == "" {
		branching = BranchingAlmostTrunk
	}
	if workingBranch == "" {
		workingBranch = "main"
	}
	return &Train{
		ID:                 id,
		AppID:              appID,
		Name:               name,
		Status:             TrainDraft,
		VersioningStrategy: versioning,
		BranchingStrategy:  branching,
		WorkingBranch:      workingBranch,
		CurrentVersion:     seedVersion,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// NextVersion computes the version the next release would carry. A major
// bump increments major and zeroes the rest; otherwise minor is bumped
// (or patch, under the patch-only strategy). A parse failure here means
// a corrupted row, not bad user input.
func (t *Train) NextVersion(majorBump bool) (string, error) {
	v, err := ParseVersion(t.CurrentVersion)
	if err != nil {
		return "", fmt.Errorf("train %s holds malformed version: %w", t.ID, err)
	}
	term := TermMinor
	if majorBump {
		term = TermMajor
	} else if t.VersioningStrategy == StrategyPatchOnly {
		term = TermPatch
	}
	return v.Bump(term).String(), nil
}

// BumpRelease records a finished release's version as the train's
// current version. Regressions are rejected to keep the version
// monotonic.
func (t *Train) BumpRelease(finishedVersion string, now time.Time) error {
	cur, err := ParseVersion(t.CurrentVersion)
	if err != nil {
		return fmt.Errorf("train %s holds malformed version: %w", t.ID, err)
	}
	next, err := ParseVersion(finishedVersion)
	if err != nil {
		return fmt.Errorf("finished version: %w", err)
	}
	if next.Less(cur) {
		return fmt.Errorf("version %s regresses below current %s", finishedVersion, t.CurrentVersion)
	}
	t.CurrentVersion = finishedVersion
	t.UpdatedAt = now
	return nil
}

// NextFixVersion computes a hotfix version by bumping patch from the
// last finished platform run's version rather than the train's nominal
// version, so platform tracks can diverge.
func (t *Train) NextFixVersion(lastFinishedVersion string) (string, error) {
	base, err := ParseVersion(lastFinishedVersion)
	if err != nil {
		return "", fmt.Errorf("last finished version: %w", err)
	}
	return base.Bump(TermPatch).String(), nil
}

// ReleaseBranch names the branch a release for version cuts, per the
// train's branching strategy.
func (t *Train) ReleaseBranch(version string) string {
	if t.BranchingStrategy == BranchingAlmostTrunk {
		return fmt.Sprintf("r/%s/%s", t.Name, version)
	}
	return fmt.Sprintf("release/%s/%s", t.Name, version)
}

func (t *Train) Activate(now time.Time) {
	t.Status = TrainActive
	t.UpdatedAt = now
}
