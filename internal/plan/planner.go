package plan

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tmsnav/internal/geom"
)

// Defaults for a planner with zero Options.
const (
	DefaultGridSpacing = 1.0
	DefaultGridCount   = 16
)

// Options configures a Planner.
type Options struct {
	// PlanOnBrain plans on the brain surface and projects onto the skin.
	// Otherwise poses are planned directly on the skin.
	PlanOnBrain bool
	Policy      Policy

	RandomPosRangeMm  float64
	RandomAngRangeDeg float64

	// Rand seeds RandomizePose. A time-seeded source is used when nil.
	Rand *rand.Rand
}

// State is a copy of everything a Planner tracks. Nil poses have not been
// computed.
type State struct {
	PlanOnBrain bool
	Policy      Policy

	// Target is the pose last sent to the navigation side.
	Target *geom.Pose
	// Cortex is the raw pose planned on the brain surface.
	Cortex *geom.Pose
	// SkinRay and SkinClosest are the skin projections of Cortex.
	SkinRay     *geom.Pose
	SkinClosest *geom.Pose
	OverrideY   geom.Point3

	Grid *GridPlan
}

// CommitCheck vets a pose before it becomes the target. An error aborts the
// change. It must not call back into the Planner.
type CommitCheck func(geom.Pose) error

func (s State) clone() State {
	c := s
	c.Target = clonePose(s.Target)
	c.Cortex = clonePose(s.Cortex)
	c.SkinRay = clonePose(s.SkinRay)
	c.SkinClosest = clonePose(s.SkinClosest)
	c.Grid = s.Grid.clone()
	return c
}

func clonePose(p *geom.Pose) *geom.Pose {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Planner owns one module's planning state: the active target, the brain
// and skin candidates behind it, the override point and the grid plan.
// Every method computes its result before taking the state lock to commit,
// so a failed call leaves the state as it was.
type Planner struct {
	skin  Surface
	brain Surface

	randPos, randAng float64

	mu    sync.Mutex
	rng   *rand.Rand
	state State
	check CommitCheck

	subscribers  map[string]chan State
	subscriberMu sync.Mutex
}

// NewPlanner returns a planner over the given surfaces. brain may be nil
// when PlanOnBrain is false; skin may be nil if only 3 or 4 landmark plans
// on skin are needed.
func NewPlanner(skin, brain Surface, opts Options) *Planner {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.RandomPosRangeMm == 0 {
		opts.RandomPosRangeMm = DefaultRandomPosRangeMm
	}
	if opts.RandomAngRangeDeg == 0 {
		opts.RandomAngRangeDeg = DefaultRandomAngRangeDeg
	}
	return &Planner{
		skin:        skin,
		brain:       brain,
		randPos:     opts.RandomPosRangeMm,
		randAng:     opts.RandomAngRangeDeg,
		rng:         rng,
		state:       State{PlanOnBrain: opts.PlanOnBrain, Policy: opts.Policy},
		subscribers: make(map[string]chan State),
	}
}

// anchor is the surface poses are planned on.
func (pl *Planner) anchor(onBrain bool) Surface {
	if onBrain {
		return pl.brain
	}
	return pl.skin
}

// SetCommitCheck installs check, run on every new target before it is
// committed. Nil removes it.
func (pl *Planner) SetCommitCheck(check CommitCheck) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.check = check
}

func (pl *Planner) verify(p geom.Pose) error {
	pl.mu.Lock()
	check := pl.check
	pl.mu.Unlock()
	if check == nil {
		return nil
	}
	return check(p)
}

type candidates struct {
	target, cortex, skinRay, skinClosest *geom.Pose
}

// resolve turns a raw pose into the output pose. On the brain surface the raw
// pose is projected onto the skin and the policy picks the result.
func (pl *Planner) resolve(raw geom.Pose, override geom.Point3, onBrain bool, policy Policy) (candidates, error) {
	if !onBrain {
		return candidates{target: &raw}, nil
	}
	c := candidates{cortex: &raw}
	switch policy {
	case PolicySkin, PolicyCortex:
		ray, err := ProjectAlongNormal(raw, override, pl.skin)
		if err != nil {
			return candidates{}, fmt.Errorf("skin projection: %w", err)
		}
		c.skinRay = &ray
		if policy == PolicySkin {
			c.target = &ray
		} else {
			t := geom.NewPose(ray.Origin, raw.Orientation)
			c.target = &t
		}
	case PolicySkinClosest:
		closest, err := ProjectClosest(raw, override, pl.skin)
		if err != nil {
			return candidates{}, fmt.Errorf("closest skin point: %w", err)
		}
		c.skinClosest = &closest
		c.target = &closest
	case PolicyCombined:
		return candidates{}, fmt.Errorf("%s orientation: %w", policy, ErrNotImplemented)
	default:
		return candidates{}, fmt.Errorf("unknown policy %s", policy)
	}
	return c, nil
}

// commit stores c as the current result. Callers hold pl.mu.
func (pl *Planner) commit(c candidates) {
	pl.state.Target = c.target
	pl.state.Cortex = c.cortex
	pl.state.SkinRay = c.skinRay
	pl.state.SkinClosest = c.skinClosest
}

// Plan computes a new target from a 2, 3 or 4 landmark set and makes it
// current. Any grid plan is kept.
func (pl *Planner) Plan(landmarks []geom.Point3) (geom.Pose, error) {
	pl.mu.Lock()
	onBrain, policy := pl.state.PlanOnBrain, pl.state.Policy
	pl.mu.Unlock()

	raw, override, err := ToolPose(landmarks, pl.anchor(onBrain))
	if err != nil {
		return geom.Pose{}, err
	}
	c, err := pl.resolve(raw, override, onBrain, policy)
	if err != nil {
		return geom.Pose{}, err
	}
	if err := pl.verify(*c.target); err != nil {
		return geom.Pose{}, err
	}

	pl.mu.Lock()
	pl.commit(c)
	pl.state.OverrideY = override
	snap := pl.state.clone()
	pl.mu.Unlock()

	pl.publish(snap)
	return *c.target, nil
}

// SetPlanOnBrain switches the planning surface for subsequent plans.
func (pl *Planner) SetPlanOnBrain(on bool) {
	pl.mu.Lock()
	pl.state.PlanOnBrain = on
	snap := pl.state.clone()
	pl.mu.Unlock()
	pl.publish(snap)
}

// SetPolicy selects the orientation policy and re-derives the target under
// it. The returned pose is the current target, or nil before anything has
// been planned. When planning on the brain the policy and the re-derived
// target are committed together; if the re-derivation fails neither
// changes. The combined policy is always rejected.
func (pl *Planner) SetPolicy(p Policy) (*geom.Pose, error) {
	if p == PolicyCombined {
		return nil, fmt.Errorf("%s orientation: %w", p, ErrNotImplemented)
	}
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("unknown policy %s", p)
	}

	pl.mu.Lock()
	st := pl.state.clone()
	pl.mu.Unlock()

	var c *candidates
	if st.PlanOnBrain && st.Cortex != nil {
		next, err := pl.resolve(*st.Cortex, st.OverrideY, true, p)
		if err != nil {
			return nil, err
		}
		if err := pl.verify(*next.target); err != nil {
			return nil, err
		}
		c = &next
	}

	pl.mu.Lock()
	pl.state.Policy = p
	if c != nil {
		pl.commit(*c)
	}
	target := clonePose(pl.state.Target)
	snap := pl.state.clone()
	pl.mu.Unlock()

	pl.publish(snap)
	return target, nil
}

// Replan re-derives the target from the stored cortex pose under the
// current policy. When planning on skin it returns the current target.
func (pl *Planner) Replan() (geom.Pose, error) {
	pl.mu.Lock()
	st := pl.state.clone()
	pl.mu.Unlock()

	if !st.PlanOnBrain || st.Cortex == nil {
		if st.Target == nil {
			return geom.Pose{}, ErrNoTarget
		}
		return *st.Target, nil
	}
	c, err := pl.resolve(*st.Cortex, st.OverrideY, true, st.Policy)
	if err != nil {
		return geom.Pose{}, err
	}
	if err := pl.verify(*c.target); err != nil {
		return geom.Pose{}, err
	}

	pl.mu.Lock()
	pl.commit(c)
	snap := pl.state.clone()
	pl.mu.Unlock()

	pl.publish(snap)
	return *c.target, nil
}

// Adjust applies a manual offset (mm, radians) to the current target and
// makes the result current.
func (pl *Planner) Adjust(dT, dR [3]float64) (geom.Pose, error) {
	current, ok := pl.Target()
	if !ok {
		return geom.Pose{}, ErrNoTarget
	}
	next := AdjustPose(current, dT, dR)
	if err := pl.verify(next); err != nil {
		return geom.Pose{}, err
	}

	pl.mu.Lock()
	pl.state.Target = &next
	snap := pl.state.clone()
	pl.mu.Unlock()

	pl.publish(snap)
	return next, nil
}

// Randomize returns a random perturbation of the current target. The
// target itself is not replaced, so repeated calls scatter around the plan.
func (pl *Planner) Randomize() (geom.Pose, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.state.Target == nil {
		return geom.Pose{}, ErrNoTarget
	}
	return RandomizePose(*pl.state.Target, pl.randPos, pl.randAng, pl.rng), nil
}

// PlanGrid builds a grid plan around the cortex pose (planning on brain) or
// the target (planning on skin) and makes it current at index 0.
func (pl *Planner) PlanGrid(count int, spacing float64) (*GridPlan, error) {
	pl.mu.Lock()
	st := pl.state.clone()
	pl.mu.Unlock()

	base := st.Target
	if st.PlanOnBrain {
		base = st.Cortex
	}
	if base == nil {
		return nil, ErrNoTarget
	}
	grid, err := GenerateGridPlan(*base, count, spacing, pl.anchor(st.PlanOnBrain), st.OverrideY)
	if err != nil {
		return nil, err
	}

	pl.mu.Lock()
	pl.state.Grid = grid
	snap := pl.state.clone()
	pl.mu.Unlock()

	pl.publish(snap)
	return grid.clone(), nil
}

// GridNext advances the grid to its next waypoint (wrapping) and plans from
// it as if it had just been planned from landmarks.
func (pl *Planner) GridNext() (geom.Pose, int, error) {
	pl.mu.Lock()
	st := pl.state.clone()
	pl.mu.Unlock()

	if st.Grid == nil || st.Grid.Len() == 0 {
		return geom.Pose{}, 0, fmt.Errorf("grid plan: %w", ErrNoTarget)
	}
	grid := st.Grid
	raw := grid.Next()
	c, err := pl.resolve(raw, st.OverrideY, st.PlanOnBrain, st.Policy)
	if err != nil {
		return geom.Pose{}, 0, err
	}
	if err := pl.verify(*c.target); err != nil {
		return geom.Pose{}, 0, err
	}

	pl.mu.Lock()
	pl.commit(c)
	pl.state.Grid = grid
	snap := pl.state.clone()
	pl.mu.Unlock()

	pl.publish(snap)
	return *c.target, grid.Current, nil
}

// Target returns the current target pose.
func (pl *Planner) Target() (geom.Pose, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.state.Target == nil {
		return geom.Pose{}, false
	}
	return *pl.state.Target, true
}

// Snapshot returns a copy of the planner state.
func (pl *Planner) Snapshot() State {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.state.clone()
}

// Subscribe registers an observer for state changes. The channel holds the
// latest undelivered snapshot; a newer change replaces one not yet read.
func (pl *Planner) Subscribe() (string, chan State) {
	id := uuid.NewString()
	ch := make(chan State, 1)
	pl.subscriberMu.Lock()
	defer pl.subscriberMu.Unlock()
	pl.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes an observer channel.
func (pl *Planner) Unsubscribe(id string) {
	pl.subscriberMu.Lock()
	defer pl.subscriberMu.Unlock()
	if ch, ok := pl.subscribers[id]; ok {
		close(ch)
		delete(pl.subscribers, id)
	}
}

func (pl *Planner) publish(s State) {
	pl.subscriberMu.Lock()
	defer pl.subscriberMu.Unlock()
	for _, ch := range pl.subscribers {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
