// Package planner assigns domains to a compiled workflow: it assigns
// each Node edge a domain, resolves every input's availability, and
// records each produced intermediate result's planned location in the
// workflow's symbol table.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/brane-project/brane/pkg/cache"
	"github.com/brane-project/brane/pkg/checker"
	"github.com/brane-project/brane/pkg/ir"
)

// DomainDirectory answers "which domains exist and what do they support"
// for the capability side of Node location selection.
type DomainDirectory interface {
	Domains(ctx context.Context) ([]string, error)
	Lookup(ctx context.Context, domain string) (cache.DomainInfo, error)
}

// DataLocator answers "which domains currently hold this datum" for the
// input-availability side of Node location selection.
type DataLocator interface {
	Locate(ctx context.Context, name ir.DataName) ([]string, error)
}

// CheckerDialer returns a Checker client scoped to a specific domain, used
// for the optional workflow-validation consult of .
type CheckerDialer func(domain string) *checker.Client

// Planner fills in a compiled workflow's planning-stage annotations.
type Planner struct {
	directory DomainDirectory
	locator   DataLocator
	dialer    CheckerDialer // nil disables the checker consult entirely
}

// New constructs a Planner. dialer may be nil to skip the optional
// workflow-validation checker consult of .
func New(directory DomainDirectory, locator DataLocator, dialer CheckerDialer) *Planner {
	return &Planner{directory: directory, locator: locator, dialer: dialer}
}

// Plan mutates workflow in place: every Node.At is filled, every input's
// Avail is resolved, and table.Results is populated. It returns an error
// without partially-committing a broken plan's checker-denied domains,
// though nodes planned before a failure retain their assignments (the
// caller should discard the whole workflow on any error
// "the workflow is immutable after planning" — a failed plan never
// reaches that state).
func (p *Planner) Plan(ctx context.Context, wf *ir.Workflow) error {
	touched := map[string]bool{}

	var walk func(body []ir.Edge) error
	walk = func(body []ir.Edge) error {
		for i := range body {
			edge := &body[i]
			switch edge.Kind {
			case ir.EdgeNode:
				domain, err := p.planNode(ctx, wf, edge)
				if err != nil {
					return err
				}
				touched[domain] = true
			case ir.EdgeParallel:
				for _, branch := range edge.Branches {
					if err := walk(branch); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	if err := walk(wf.Graph); err != nil {
		return err
	}
	for _, body := range wf.Funcs {
		if err := walk(body); err != nil {
			return err
		}
	}

	if p.dialer != nil {
		if err := p.consultCheckers(ctx, wf, touched); err != nil {
			return err
		}
	}

	return nil
}

// planNode resolves one Node edge's location and every one of its
// inputs' availability steps 1-2.
func (p *Planner) planNode(ctx context.Context, wf *ir.Workflow, edge *ir.Edge) (string, error) {
	def, ok := wf.Table.Func(edge.TaskFunc)
	if !ok {
		return "", fmt.Errorf("%w: task %q references unknown function id %d", ErrPlanningFailure, edge.Task, edge.TaskFunc)
	}

	candidates, err := p.candidateDomains(ctx, edge.Locs)
	if err != nil {
		return "", err
	}

	eligible, err := p.filterByCapabilities(ctx, candidates, def.Capabilities)
	if err != nil {
		return "", err
	}
	if len(eligible) == 0 {
		return "", fmt.Errorf("%w: task %q needs %v", ErrUnsupportedCapabilities, edge.Task, def.Capabilities)
	}

	eligible, err = p.filterByInputReachability(ctx, eligible, edge.Input)
	if err != nil {
		return "", err
	}
	if len(eligible) == 0 {
		return "", fmt.Errorf("%w: task %q: no eligible domain can reach all its inputs", ErrDatasetUnavailable, edge.Task)
	}
	if len(edge.Locs) != 1 && len(eligible) > 1 {
		sort.Strings(eligible)
		return "", &AmbiguousLocationError{Task: edge.Task, Candidates: eligible}
	}

	domain := eligible[0]
	edge.At = domain

	for i := range edge.Input {
		if err := p.resolveInput(ctx, domain, &edge.Input[i]); err != nil {
			return "", err
		}
	}

	if edge.Result != "" {
		wf.Table.Results[edge.Result] = domain
	}

	return domain, nil
}

// candidateDomains implements 's location choice: a
// singleton Locs pins the domain outright; a non-empty Locs restricts the
// choice to that set; an empty Locs ("All") opens it to every known
// domain.
func (p *Planner) candidateDomains(ctx context.Context, locs []string) ([]string, error) {
	if len(locs) > 0 {
		return locs, nil
	}
	all, err := p.directory.Domains(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing domains: %v", ErrPlanningFailure, err)
	}
	return all, nil
}

func (p *Planner) filterByCapabilities(ctx context.Context, domains []string, required []string) ([]string, error) {
	if len(required) == 0 {
		return domains, nil
	}
	var out []string
	for _, d := range domains {
		info, err := p.directory.Lookup(ctx, d)
		if err != nil {
			continue // unreachable domain is simply not eligible
		}
		if hasAllCapabilities(info.Capabilities, required) {
			out = append(out, d)
		}
	}
	return out, nil
}

func hasAllCapabilities(have []string, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}

// filterByInputReachability checks that every one of a Node's inputs is
// held by at least one known domain (any domain can fetch a datum from
// whichever domain holds it, subject to the checker's later approval of
// the actual transfer —  only requires that a source exist,
// not that the chosen execution domain already have it locally). Domains
// are passed through unfiltered; the error, if any, names the missing
// datum rather than any particular candidate domain.
func (p *Planner) filterByInputReachability(ctx context.Context, domains []string, inputs []ir.NodeInput) ([]string, error) {
	for _, in := range inputs {
		h, err := p.locator.Locate(ctx, in.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: locating %s: %v", ErrPlanningFailure, in.Name, err)
		}
		if len(h) == 0 {
			if in.Name.Kind == ir.DataNameDataset {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, in.Name)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnknownIntermediateResult, in.Name)
		}
	}
	return domains, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// resolveInput marks a Node input Available if the executing domain
// already holds it, else Unavailable carrying a hint to a reachable
// source domain.
func (p *Planner) resolveInput(ctx context.Context, domain string, in *ir.NodeInput) error {
	holders, err := p.locator.Locate(ctx, in.Name)
	if err != nil {
		return fmt.Errorf("%w: locating %s: %v", ErrPlanningFailure, in.Name, err)
	}
	if contains(holders, domain) {
		in.Avail = ir.AvailabilityKind{
			Tag: ir.AvailabilityAvailable,
			How: ir.FileAccess(localPath(in.Name)),
		}
		return nil
	}
	if len(holders) == 0 {
		return fmt.Errorf("%w: %s", ErrDatasetUnavailable, in.Name)
	}
	in.Avail = ir.AvailabilityKind{
		Tag:    ir.AvailabilityUnavailable,
		How:    ir.FileAccess(localPath(in.Name)),
		Source: holders[0],
	}
	return nil
}

// localPath is the conventional path, relative to the executing worker's
// data or temp-data root, that a given datum resolves under in the
// worker's filesystem layout. The worker's own preprocess call is what
// actually materializes the file there; this is only a planning-time
// convention carried through AvailabilityKind.How for the plugin to
// interpret.
func localPath(name ir.DataName) string {
	if name.Kind == ir.DataNameIntermediateResult {
		return "results/" + name.Name
	}
	return "data/" + name.Name + "/data"
}

// consultCheckers implements : before finalizing, ask
// each target domain's checker, in sorted domain order, to validate the
// whole workflow. The first denial aborts planning: the remaining
// domains' checkers are not asked, and the CheckerDeniedError carries
// only that domain's reasons.
func (p *Planner) consultCheckers(ctx context.Context, wf *ir.Workflow, domains map[string]bool) error {
	payload, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("%w: marshaling workflow for checker consult: %v", ErrPlanningFailure, err)
	}

	names := make([]string, 0, len(domains))
	for d := range domains {
		names = append(names, d)
	}
	sort.Strings(names)

	for _, domain := range names {
		client := p.dialer(domain)
		if client == nil {
			continue
		}
		verdict, err := client.CheckWorkflow(ctx, checker.WorkflowRequest{
			Workflow: payload,
			EndUser:  wf.EndUser,
			UseCase:  wf.UseCase,
		})
		if err != nil {
			return fmt.Errorf("%w: checker consult on domain %q: %v", ErrPlanningFailure, domain, err)
		}
		if !verdict.Allowed {
			return &CheckerDeniedError{Domain: domain, Reasons: verdict.Reasons}
		}
	}
	return nil
}
