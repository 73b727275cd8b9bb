package stress

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/flexrc/flexrc"
)

// Runner executes scenarios with one configuration.
type Runner struct {
	cfg Config
	log *zap.Logger
}

// NewRunner validates cfg and returns a runner logging to log (nil for no
// logging).
func NewRunner(cfg Config, log *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log}, nil
}

// Config returns the runner's configuration.
func (r *Runner) Config() Config { return r.cfg }

// All runs every scenario supported by the scheme and stops at the first
// violation.
func (r *Runner) All(ctx context.Context) ([]Result, error) {
	scenarios := []func(context.Context) (Result, error){
		r.CloneDrop, r.LocalChurn, r.RoundTrip,
	}
	if r.cfg.Scheme != SchemeIndependent {
		scenarios = append(scenarios, r.ClaimRace)
	}

	results := make([]Result, 0, len(scenarios))
	for _, run := range scenarios {
		res, err := run(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// CloneDrop has every goroutine clone and drop Shared handles of a single
// record, then checks it was released exactly once.
func (r *Runner) CloneDrop(ctx context.Context) (Result, error) {
	var (
		res Result
		err error
	)
	switch r.cfg.Scheme {
	case SchemeIndependent:
		res, err = cloneDrop[flexrc.Meta, flexrc.Shared, flexrc.Local](ctx, r.cfg)
	case SchemeHybrid:
		res, err = cloneDrop[flexrc.HybridMeta, flexrc.HybridShared, flexrc.HybridLocal](ctx, r.cfg)
	default:
		res, err = cloneDrop[flexrc.TrackedMeta, flexrc.TrackedShared, flexrc.TrackedLocal](ctx, r.cfg)
	}
	return r.finish(res, err)
}

// LocalChurn clones a Local handle Iterations times on one goroutine and
// drops all handles in random order.
func (r *Runner) LocalChurn(ctx context.Context) (Result, error) {
	var (
		res Result
		err error
	)
	switch r.cfg.Scheme {
	case SchemeIndependent:
		res, err = localChurn[flexrc.Meta, flexrc.Local, flexrc.Shared](ctx, r.cfg)
	case SchemeHybrid:
		res, err = localChurn[flexrc.HybridMeta, flexrc.HybridLocal, flexrc.HybridShared](ctx, r.cfg)
	default:
		res, err = localChurn[flexrc.TrackedMeta, flexrc.TrackedLocal, flexrc.TrackedShared](ctx, r.cfg)
	}
	return r.finish(res, err)
}

// ClaimRace has goroutines holding Shared handles race to claim the Local
// side of one record. At most one goroutine may hold it at any time.
func (r *Runner) ClaimRace(ctx context.Context) (Result, error) {
	var (
		res Result
		err error
	)
	switch r.cfg.Scheme {
	case SchemeHybrid:
		res, err = claimRace[flexrc.HybridMeta, flexrc.HybridShared, flexrc.HybridLocal](ctx, r.cfg)
	case SchemeTracked:
		res, err = claimRace[flexrc.TrackedMeta, flexrc.TrackedShared, flexrc.TrackedLocal](ctx, r.cfg)
	default:
		return Result{}, fmt.Errorf("%w: claim-race needs a hybrid scheme, got %s",
			ErrUnsupportedScheme, r.cfg.Scheme)
	}
	return r.finish(res, err)
}

// RoundTrip converts Local records to Shared and back on every goroutine
// and checks the record and payload are unchanged.
func (r *Runner) RoundTrip(ctx context.Context) (Result, error) {
	var (
		res Result
		err error
	)
	switch r.cfg.Scheme {
	case SchemeIndependent:
		res, err = roundTrip[flexrc.Meta, flexrc.Local, flexrc.Shared](ctx, r.cfg)
	case SchemeHybrid:
		res, err = roundTrip[flexrc.HybridMeta, flexrc.HybridLocal, flexrc.HybridShared](ctx, r.cfg)
	default:
		res, err = roundTrip[flexrc.TrackedMeta, flexrc.TrackedLocal, flexrc.TrackedShared](ctx, r.cfg)
	}
	return r.finish(res, err)
}

func (r *Runner) finish(res Result, err error) (Result, error) {
	res.Scheme = r.cfg.Scheme
	if err != nil {
		r.log.Error("scenario failed", append(res.Fields(), zap.Error(err))...)
		return res, err
	}
	r.log.Info("scenario passed", res.Fields()...)
	return res, nil
}

func cloneDrop[B any, S flexrc.Algorithm[B], L flexrc.Algorithm[B]](ctx context.Context, cfg Config) (Result, error) {
	res := Result{Scenario: "clone-drop", Goroutines: cfg.Goroutines}
	start := time.Now()

	p := newPayload(0)
	rc := flexrc.New[B, S, L](p)

	var ops atomic.Uint64
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Goroutines; i++ {
		h := rc.Clone()
		g.Go(func() error {
			defer h.Drop()
			for n := 0; n < cfg.Iterations; n++ {
				if n%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				c := h.Clone()
				early := c.Get().released()
				c.Drop()
				if early {
					return fmt.Errorf("%w: clone-drop iteration %d", ErrEarlyRelease, n)
				}
				ops.Add(1)
			}
			return nil
		})
	}
	rc.Drop()
	err := g.Wait()

	res.Operations = ops.Load()
	res.Releases = p.releases.Load()
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}
	return res, checkReleasedOnce(res.Scenario, res.Releases)
}

func localChurn[B any, L flexrc.Algorithm[B], S flexrc.Algorithm[B]](ctx context.Context, cfg Config) (Result, error) {
	res := Result{Scenario: "local-churn", Goroutines: 1}
	start := time.Now()

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	p := newPayload(0)
	rc := flexrc.New[B, L, S](p)
	handles := make([]*flexrc.FlexRc[B, L, S, payload], 0, cfg.Iterations+1)
	handles = append(handles, rc)
	for n := 0; n < cfg.Iterations; n++ {
		handles = append(handles, rc.Clone())
	}
	rng.Shuffle(len(handles), func(i, j int) { handles[i], handles[j] = handles[j], handles[i] })

	for i, h := range handles {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				// Leave nothing behind on cancellation.
				for _, rest := range handles[i:] {
					rest.Drop()
				}
				return res, err
			}
		}
		if p.released() {
			return res, fmt.Errorf("%w: local-churn after %d of %d drops", ErrEarlyRelease, i, len(handles))
		}
		h.Drop()
		res.Operations++
	}

	res.Releases = p.releases.Load()
	res.Elapsed = time.Since(start)
	return res, checkReleasedOnce(res.Scenario, res.Releases)
}

func claimRace[B any, S flexrc.Algorithm[B], L flexrc.Algorithm[B]](ctx context.Context, cfg Config) (Result, error) {
	res := Result{Scenario: "claim-race", Goroutines: cfg.Goroutines}
	start := time.Now()

	p := newPayload(0)
	rc := flexrc.New[B, S, L](p)

	var (
		holders  atomic.Int32
		ops      atomic.Uint64
		claims   atomic.Uint64
		refusals atomic.Uint64
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Goroutines; i++ {
		h := rc.Clone()
		g.Go(func() error {
			defer h.Drop()
			for n := 0; n < cfg.Iterations; n++ {
				if n%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				ops.Add(1)
				local, ok := h.TryToOther()
				if !ok {
					refusals.Add(1)
					continue
				}
				claims.Add(1)
				if holders.Add(1) != 1 {
					local.Drop()
					return fmt.Errorf("%w: claim-race iteration %d", ErrClaimInvariant, n)
				}
				early := local.Get().released()
				holders.Add(-1)
				local.Drop()
				if early {
					return fmt.Errorf("%w: claim-race iteration %d", ErrEarlyRelease, n)
				}
			}
			return nil
		})
	}
	rc.Drop()
	err := g.Wait()

	res.Operations = ops.Load()
	res.Claims = claims.Load()
	res.Refusals = refusals.Load()
	res.Releases = p.releases.Load()
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}
	return res, checkReleasedOnce(res.Scenario, res.Releases)
}

func roundTrip[B any, L flexrc.Algorithm[B], S flexrc.Algorithm[B]](ctx context.Context, cfg Config) (Result, error) {
	res := Result{Scenario: "round-trip", Goroutines: cfg.Goroutines}
	start := time.Now()

	var (
		ops      atomic.Uint64
		releases atomic.Int64
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Goroutines; i++ {
		g.Go(func() error {
			for n := 0; n < cfg.Iterations; n++ {
				if n%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				p := newPayload(i*cfg.Iterations + n)
				err := roundTripOnce[B, L, S](p)
				releases.Add(p.releases.Load())
				if err != nil {
					return err
				}
				if err := checkReleasedOnce(res.Scenario, p.releases.Load()); err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	res.Operations = ops.Load()
	res.Releases = releases.Load()
	res.Elapsed = time.Since(start)
	return res, err
}

// roundTripOnce converts a fresh Local record to Shared and back, then
// drops it.
func roundTripOnce[B any, L flexrc.Algorithm[B], S flexrc.Algorithm[B]](p payload) error {
	local := flexrc.New[B, L, S](p)
	before, _ := local.GetMut()

	shared, ok := local.TryIntoOther()
	if !ok {
		local.Drop()
		return fmt.Errorf("%w: local to shared refused", ErrRoundTrip)
	}
	back, ok := shared.TryIntoOther()
	if !ok {
		shared.Drop()
		return fmt.Errorf("%w: shared to local refused", ErrRoundTrip)
	}
	defer back.Drop()

	after, unique := back.GetMut()
	switch {
	case !unique:
		return fmt.Errorf("%w: handle not unique after round trip", ErrRoundTrip)
	case after != before:
		return fmt.Errorf("%w: record moved", ErrRoundTrip)
	case after.seq != p.seq:
		return fmt.Errorf("%w: payload %d became %d", ErrRoundTrip, p.seq, after.seq)
	}
	return nil
}
