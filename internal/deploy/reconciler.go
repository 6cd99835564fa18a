package deploy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/shipwright/internal/artifact"
	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/errors"
	"git.home.luguber.info/inful/shipwright/internal/logfields"
	"git.home.luguber.info/inful/shipwright/internal/oracle"
	"git.home.luguber.info/inful/shipwright/internal/pipeline"
	"git.home.luguber.info/inful/shipwright/internal/registry"
)

// Reconciler assembles the full manifest document, rewrites artifact output
// paths to image references, and applies it when any fragment is dirty. The
// document under construction is owned exclusively by the reconciler for the
// duration of a run.
type Reconciler struct {
	cfg       *config.Config
	bus       *pipeline.Bus
	differ    oracle.Differ // nil when the workspace has no usable history
	rewriter  Rewriter
	transport ClusterTransport
	runID     string
}

// NewReconciler wires the manifest reconciliation step for one run.
func NewReconciler(cfg *config.Config, bus *pipeline.Bus, differ oracle.Differ, transport ClusterTransport, runID string) *Reconciler {
	return &Reconciler{
		cfg:       cfg,
		bus:       bus,
		differ:    differ,
		rewriter:  TextualRewriter{},
		transport: transport,
		runID:     runID,
	}
}

// WithRewriter swaps the placeholder rewrite strategy.
func (r *Reconciler) WithRewriter(rw Rewriter) *Reconciler {
	if rw != nil {
		r.rewriter = rw
	}
	return r
}

func (r *Reconciler) scope() pipeline.RunScoped { return pipeline.RunScoped{RunID: r.runID} }

func (r *Reconciler) publish(e pipeline.Event) {
	if err := r.bus.Publish(e); err != nil {
		slog.Warn("Event handler error", logfields.RunID(r.runID), logfields.Error(err))
	}
}

// ReconcileResult reports which fragments were applied. Applied is empty
// when the dirty set was empty and nothing touched the cluster.
type ReconcileResult struct {
	Fragments []string // every enumerated fragment, workspace-relative
	Applied   []string // dirty fragments that triggered the apply
}

// Reconcile determines the dirty fragment set and, when non-empty, applies
// the full rewritten manifest document via the cluster transport. A fragment
// is dirty when any artifact it references was freshly pushed this run, when
// its own content changed between the two most recent commits, or when the
// global force flag is set.
func (r *Reconciler) Reconcile(ctx context.Context, artifacts []artifact.Located, outcomes []registry.Outcome) (ReconcileResult, error) {
	fragments, err := LoadFragments(r.cfg.ManifestsPath(), r.cfg.Workspace)
	if err != nil {
		return ReconcileResult{}, err
	}

	var res ReconcileResult
	for _, f := range fragments {
		res.Fragments = append(res.Fragments, f.Rel)
	}

	pushed := map[string]bool{}
	images := map[string]string{}
	for _, o := range outcomes {
		pushed[o.Name] = o.Pushed
		images[o.Name] = o.Image
	}

	placeholders := map[string]string{} // artifact output path -> image ref
	owners := map[string][]string{}     // fragment rel -> referencing artifact names
	for _, art := range artifacts {
		outputPath := r.artifactOutputPath(art)
		if image := images[art.Name]; image != "" {
			placeholders[outputPath] = image
		}
		for _, f := range fragments {
			if f.References(outputPath) {
				owners[f.Rel] = append(owners[f.Rel], art.Name)
			}
		}
	}

	dirty := r.dirtyFragments(fragments, owners, pushed)
	if len(dirty) == 0 {
		slog.Info("All manifests clean, nothing to apply", logfields.RunID(r.runID))
		return res, nil
	}
	res.Applied = dirty
	r.publish(pipeline.ManifestDirty{RunScoped: r.scope(), Fragments: dirty})

	doc := r.assemble(fragments, placeholders)
	if err := r.apply(ctx, doc); err != nil {
		return res, err
	}
	return res, nil
}

// artifactOutputPath is the placeholder form fragments use to reference an
// artifact: its output directory relative to the workspace, slash-separated.
func (r *Reconciler) artifactOutputPath(art artifact.Located) string {
	rel, err := filepath.Rel(r.cfg.Workspace, art.Dir)
	if err != nil {
		return filepath.ToSlash(art.Dir)
	}
	return filepath.ToSlash(rel)
}

func (r *Reconciler) dirtyFragments(fragments []Fragment, owners map[string][]string, pushed map[string]bool) []string {
	var dirty []string
	for _, f := range fragments {
		reason := ""
		switch {
		case r.cfg.Force:
			reason = "forced"
		case anyPushed(owners[f.Rel], pushed):
			reason = "artifact pushed"
		default:
			changed, err := r.fragmentChanged(f)
			if err != nil {
				// History lookup failures bias toward re-applying.
				r.publish(pipeline.DiffError{RunScoped: r.scope(), File: f.Rel, Err: err.Error()})
				reason = "history unavailable"
			} else if changed {
				reason = "history diff"
			}
		}
		if reason != "" {
			slog.Debug("Manifest dirty", logfields.RunID(r.runID), logfields.Path(f.Rel), logfields.Reason(reason))
			dirty = append(dirty, f.Rel)
		}
	}
	return dirty
}

func (r *Reconciler) fragmentChanged(f Fragment) (bool, error) {
	if r.differ == nil {
		// No history to compare against: conservative, treat as changed.
		return true, nil
	}
	return r.differ.Changed(f.Rel)
}

func anyPushed(names []string, pushed map[string]bool) bool {
	for _, n := range names {
		if pushed[n] {
			return true
		}
	}
	return false
}

// separator is the document boundary inserted between fragments.
const separator = "---"

var doubledSeparator = regexp.MustCompile(`(?m)^---[ \t]*\n([ \t]*\n)*---[ \t]*$`)

// assemble concatenates every fragment (not just dirty ones — the full set
// forms the applied document), rewrites artifact paths to image references,
// and collapses the doubled boundary markers naive concatenation produces.
func (r *Reconciler) assemble(fragments []Fragment, placeholders map[string]string) string {
	contents := make([]string, 0, len(fragments))
	for _, f := range fragments {
		contents = append(contents, strings.TrimRight(f.Content, "\n"))
	}
	doc := strings.Join(contents, "\n"+separator+"\n")
	doc = r.rewriter.Rewrite(doc, placeholders)
	for doubledSeparator.MatchString(doc) {
		doc = doubledSeparator.ReplaceAllString(doc, separator)
	}
	return doc + "\n"
}

func (r *Reconciler) apply(ctx context.Context, doc string) error {
	tmp, err := os.CreateTemp("", "shipwright-apply-*.yaml")
	if err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "create manifest temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(doc); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write manifest temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "close manifest temp file")
	}

	stdout, stderr, err := r.transport.Apply(ctx, tmpName)
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			r.publish(pipeline.ApplyOutput{RunScoped: r.scope(), Line: line})
		}
	}
	if err != nil {
		return errors.ApplyFailed(strings.TrimSpace(stderr + "\n" + err.Error()))
	}
	// A transport that exits cleanly but wrote to its error stream still
	// counts as a failed apply.
	if strings.TrimSpace(stderr) != "" {
		return errors.ApplyFailed(stderr)
	}
	slog.Info("Manifests applied", logfields.RunID(r.runID))
	return nil
}
