package action

import (
	"context"
	"fmt"
	"sync"
)

// Composite groups an ordered list of child actions under a single kind tag.
// Its own State is a monotonic function of its children's states: Planned
// once every child has planned successfully, Completed once every child has
// executed. When Parallel is true, TryExecute and TryRevert dispatch
// children concurrently (bounded by maxParallel) instead of sequentially;
// TryPlan always runs sequentially since later children's plans may depend
// on host state earlier children will create.
type Composite struct {
	Base

	kind        string
	synopsisFmt string
	children    []Action
	parallel    bool
}

// maxParallel bounds sibling concurrency for parallel-safe composites, so a
// phase with many independent children (e.g. provisioning several users)
// doesn't open unbounded goroutines against the host.
const maxParallel = 4

// NewComposite builds a Composite with the given kind tag and children.
// synopsis is used verbatim as the composite's Synopsis().
func NewComposite(kind, synopsis string, parallel bool, children ...Action) *Composite {
	return &Composite{kind: kind, synopsisFmt: synopsis, children: children, parallel: parallel}
}

func (c *Composite) Kind() string                { return c.kind }
func (c *Composite) Reversibility() Reversibility { return compositeReversibility(c.children) }
func (c *Composite) Children() []Action           { return c.children }

func compositeReversibility(children []Action) Reversibility {
	worst := Lossless
	for _, child := range children {
		switch child.Reversibility() {
		case Noop:
			if worst == Lossless {
				worst = Noop
			}
		case BestEffort:
			worst = BestEffort
		}
	}
	return worst
}

// enrichChildError prepends parentSynopsis onto a child failure's synopsis
// chain, preserving its tag when the child already returned a TaggedError,
// or wrapping it fresh under fallbackTag otherwise.
func enrichChildError(parentSynopsis string, fallbackTag Tag, err error) error {
	var tagged *TaggedError
	if te, ok := err.(*TaggedError); ok {
		tagged = te
	} else {
		tagged = NewTaggedError(fallbackTag, parentSynopsis, err)
		return tagged
	}
	return tagged.Enrich(parentSynopsis)
}

func (c *Composite) TryPlan(ctx context.Context, host Host) error {
	c.setSynopsis(c.synopsisFmt)
	var descriptions []string
	for _, child := range c.children {
		if err := child.TryPlan(ctx, host); err != nil {
			return enrichChildError(c.Synopsis(), TagPlanConflict, err)
		}
		descriptions = append(descriptions, child.PlannedDescriptions()...)
	}
	c.markPlanned(descriptions)
	return nil
}

func (c *Composite) TryExecute(ctx context.Context, host Host) error {
	var descriptions []string
	if c.parallel {
		if _, err := runBounded(ctx, c.children, func(ctx context.Context, child Action) error {
			return child.TryExecute(ctx, host)
		}); err != nil {
			return enrichChildError(c.Synopsis(), TagActionFailed, err)
		}
		for _, child := range c.children {
			descriptions = append(descriptions, child.ExecutedDescriptions()...)
		}
	} else {
		for _, child := range c.children {
			if err := child.TryExecute(ctx, host); err != nil {
				return enrichChildError(c.Synopsis(), TagActionFailed, err)
			}
			descriptions = append(descriptions, child.ExecutedDescriptions()...)
		}
	}
	c.markCompleted(descriptions)
	return nil
}

// TryRevert undoes children in reverse order (sequential case) so later
// mutations, which may depend on earlier ones, are unwound first. Parallel
// composites revert concurrently since their children were planned to be
// mutually independent.
func (c *Composite) TryRevert(ctx context.Context, host Host) error {
	if c.parallel {
		if _, err := runBounded(ctx, c.children, func(ctx context.Context, child Action) error {
			return child.TryRevert(ctx, host)
		}); err != nil {
			return enrichChildError(c.Synopsis(), TagRevertFailed, err)
		}
		c.markReverted()
		return nil
	}
	var failures []RevertFailure
	for i := len(c.children) - 1; i >= 0; i-- {
		child := c.children[i]
		if child.State() != Completed {
			continue
		}
		if err := child.TryRevert(ctx, host); err != nil {
			failures = append(failures, RevertFailure{Synopsis: child.Synopsis(), Err: err})
		}
	}
	if len(failures) > 0 {
		return &RollbackError{Cause: fmt.Errorf("%s: %d child revert(s) failed", c.Synopsis(), len(failures)), RevertFailures: failures}
	}
	c.markReverted()
	return nil
}

func (c *Composite) MarshalParams() map[string]any {
	children := make([]map[string]any, len(c.children))
	for i, child := range c.children {
		children[i] = map[string]any{"kind": child.Kind(), "params": child.MarshalParams()}
	}
	return map[string]any{
		"synopsis": c.synopsisFmt, "parallel": c.parallel, "children": children,
	}
}

func (c *Composite) UnmarshalParams(params map[string]any) error {
	c.synopsisFmt, _ = params["synopsis"].(string)
	c.parallel, _ = params["parallel"].(bool)
	rawChildren, _ := params["children"].([]any)
	if typed, ok := params["children"].([]map[string]any); ok {
		// MarshalParams output passed straight back, without a JSON trip.
		for _, entry := range typed {
			rawChildren = append(rawChildren, entry)
		}
	}
	c.children = make([]Action, 0, len(rawChildren))
	for _, raw := range rawChildren {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := entry["kind"].(string)
		child := New(kind)
		if child == nil {
			return fmt.Errorf("composite %s: unknown child kind %q", c.kind, kind)
		}
		childParams, _ := entry["params"].(map[string]any)
		if err := child.UnmarshalParams(childParams); err != nil {
			return err
		}
		c.children = append(c.children, child)
	}
	return nil
}

// runBounded runs fn over items with at most maxParallel concurrent calls,
// stopping new dispatch once ctx is cancelled and returning the first error
// encountered (later errors are still collected against their own action,
// but the first is what's surfaced to the caller).
func runBounded(ctx context.Context, items []Action, fn func(context.Context, Action) error) ([]error, error) {
	sem := make(chan struct{}, maxParallel)
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for i, item := range items {
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item Action) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, item); err != nil {
				errs[i] = err
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i, item)
	}
	wg.Wait()
	return errs, firstErr
}
