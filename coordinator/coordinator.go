// Package coordinator holds the stateless orchestration logic between
// the persisted state machines. Every operation loads state, takes a
// row lock through the store's Transition helpers, applies a guarded
// mutation, and executes the returned effects only after the row is
// committed.
package coordinator

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"conductor/hub"
	"conductor/jobs"
	"conductor/model"
	"conductor/passport"
	"conductor/provider"
	"conductor/store"
)

// ArtifactStore persists CI build artifacts, content-addressed by
// app, platform, and build number.
type ArtifactStore interface {
	Put(ctx context.Context, app string, platform, buildNumber string, body io.Reader, size int64) (string, error)
}

// pollInterval paces the CI status poll while a workflow runs.
const pollInterval = 30 * time.Second

type Coordinator struct {
	db        *store.DB
	queue     *jobs.Queue
	passports passport.Store
	hub       *hub.Hub
	artifacts ArtifactStore
	cis       map[string]provider.CI
	stores    map[model.SubmissionProvider]provider.StoreDistributor
	log       zerolog.Logger
	now       func() time.Time
}

func New(db *store.DB, queue *jobs.Queue, passports passport.Store, h *hub.Hub, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		db:        db,
		queue:     queue,
		passports: passports,
		hub:       h,
		cis:       make(map[string]provider.CI),
		stores:    make(map[model.SubmissionProvider]provider.StoreDistributor),
		log:       log.With().Str("component", "coordinator").Logger(),
		now:       time.Now,
	}
}

// RegisterCI makes a CI provider available under the name trains refer
// to it by.
func (c *Coordinator) RegisterCI(name string, ci provider.CI) {
	c.cis[name] = ci
}

func (c *Coordinator) RegisterStore(p model.SubmissionProvider, dist provider.StoreDistributor) {
	c.stores[p] = dist
}

// SetArtifactStore wires the bucket CI artifacts are persisted to.
// Without one, builds keep their CI-hosted artifact URL.
func (c *Coordinator) SetArtifactStore(s ArtifactStore) { c.artifacts = s }

func (c *Coordinator) ci(name string) (provider.CI, *Error) {
	ci, ok := c.cis[name]
	if !ok {
		return nil, Errf(CodeValidation, "no CI provider registered as %q", name)
	}
	return ci, nil
}

func (c *Coordinator) distributor(p model.SubmissionProvider) (provider.StoreDistributor, *Error) {
	d, ok := c.stores[p]
	if !ok {
		return nil, Errf(CodeValidation, "no store distributor registered for %q", p)
	}
	return d, nil
}

// SetClock overrides the time source, tests only.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// applyEffects executes side effects after the originating transaction
// committed. An effect failure is logged, never propagated: the state
// transition already happened and the scheduler sweeps re-drive
// anything a lost enqueue would stall.
func (c *Coordinator) applyEffects(ctx context.Context, effects []model.Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case model.EffectEnqueue:
			if err := c.queue.Enqueue(ctx, eff.Job, eff.Args, eff.Delay); err != nil {
				c.log.Error().Err(err).Str("job", eff.Job).Msg("enqueue effect failed")
			}
		case model.EffectStamp:
			evt, err := passport.New(eff.EntityType, eff.EntityID, eff.Reason, eff.Severity, eff.Message, nil, c.now())
			if err != nil {
				c.log.Error().Err(err).Str("reason", eff.Reason).Msg("bad passport stamp")
				continue
			}
			if err := c.passports.Append(ctx, evt); err != nil {
				c.log.Error().Err(err).Str("reason", eff.Reason).Msg("passport append failed")
			}
		case model.EffectNotify:
			if c.hub != nil {
				c.hub.Broadcast(hub.Event{
					EntityType: eff.EntityType,
					EntityID:   eff.EntityID,
					Reason:     eff.Reason,
					Message:    eff.Message,
					Timestamp:  c.now(),
				})
			}
		}
	}
}

// classify maps a transition error onto a coordinator Error. A guard
// rejection is a conflict: the entity moved concurrently and the
// caller's view is stale.
func classify(err error, what string) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrInvalidTransition):
		return WrapErr(CodeInvalidTransition, err, what)
	case errors.Is(err, store.ErrNotFound):
		return WrapErr(CodeNotFound, err, what)
	default:
		return WrapErr(CodeInternal, err, what)
	}
}
