// Package oracle decides whether a unit of work must be (re)processed. Two
// independent signals feed the decision — a version-control history diff over
// the unit's inputs, and a comparison of the freshly computed fingerprint
// against the persisted one — and either can force a rebuild. The bias is
// deliberate: a wasted rebuild is cheaper than a missed real change.
package oracle

import (
	"io/fs"
	"path/filepath"

	stderrors "errors"

	"git.home.luguber.info/inful/shipwright/internal/errors"
	"git.home.luguber.info/inful/shipwright/internal/fingerprint"
)

// Reason explains a decision; surfaced in events and logs.
type Reason string

const (
	ReasonForced              Reason = "forced"
	ReasonNoHistory           Reason = "no-history"
	ReasonHistoryDiff         Reason = "history-diff"
	ReasonFingerprintMissing  Reason = "fingerprint-missing"
	ReasonFingerprintMismatch Reason = "fingerprint-mismatch"
	ReasonClean               Reason = "clean"
)

// Decision is the ephemeral per-unit outcome. It is computed fresh each run
// and never persisted.
type Decision struct {
	Rebuild bool
	Reason  Reason
	// Fingerprint is the freshly computed digest over the input set. Only
	// populated when the fingerprint signal was evaluated.
	Fingerprint string
	// DiffErrs are recoverable history lookup failures. They bias the
	// decision toward rebuilding and are reported, never raised.
	DiffErrs []error
}

// Differ reports whether a repository-relative file changed between the two
// most recent revisions. A nil Differ means no comparable history exists.
type Differ interface {
	Changed(relPath string) (bool, error)
}

// Oracle holds the per-run inputs to the decision: the captured revision
// pair (via differ) and the workspace root inputs are resolved against.
type Oracle struct {
	differ    Differ
	workspace string
	force     bool
}

// New constructs an oracle for one run. differ may be nil when history could
// not be captured; every decision then reports ReasonNoHistory.
func New(differ Differ, workspace string, force bool) *Oracle {
	return &Oracle{differ: differ, workspace: workspace, force: force}
}

// NeedsProcessing decides whether the unit owning inputs must be rebuilt,
// comparing against the fingerprint persisted at fingerprintPath.
//
// Signal order matters for one edge case only: when history says unchanged
// but the persisted fingerprint is unreadable for a reason other than
// not-exist, the underlying error is surfaced rather than silently forcing a
// rebuild.
func (o *Oracle) NeedsProcessing(inputs []string, fingerprintPath string) (Decision, error) {
	if o.force {
		return Decision{Rebuild: true, Reason: ReasonForced}, nil
	}

	historyChanged, reason, diffErrs := o.historySignal(inputs)
	if historyChanged {
		return Decision{Rebuild: true, Reason: reason, DiffErrs: diffErrs}, nil
	}

	current, err := fingerprint.Compute(inputs)
	if err != nil {
		return Decision{}, err
	}

	persisted, err := fingerprint.Read(fingerprintPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Decision{Rebuild: true, Reason: ReasonFingerprintMissing, Fingerprint: current, DiffErrs: diffErrs}, nil
		}
		return Decision{}, errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "cannot read persisted fingerprint").
			WithContext("path", fingerprintPath)
	}

	if persisted != current {
		return Decision{Rebuild: true, Reason: ReasonFingerprintMismatch, Fingerprint: current, DiffErrs: diffErrs}, nil
	}

	return Decision{Rebuild: false, Reason: ReasonClean, Fingerprint: current, DiffErrs: diffErrs}, nil
}

// historySignal diffs every input between the captured revision pair. The
// scan stops at the first definite change; lookup failures count as changes
// and are collected for reporting.
func (o *Oracle) historySignal(inputs []string) (bool, Reason, []error) {
	if o.differ == nil {
		return true, ReasonNoHistory, nil
	}

	var diffErrs []error
	for _, input := range inputs {
		rel, err := filepath.Rel(o.workspace, input)
		if err != nil {
			diffErrs = append(diffErrs, errors.Diff(input, err))
			return true, ReasonHistoryDiff, diffErrs
		}
		changed, err := o.differ.Changed(filepath.ToSlash(rel))
		if err != nil {
			diffErrs = append(diffErrs, errors.Diff(rel, err))
		}
		if changed {
			return true, ReasonHistoryDiff, diffErrs
		}
	}
	return false, ReasonClean, diffErrs
}
