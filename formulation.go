// Package invdyn assembles the contacts of a whole body inverse dynamics
// controller into one problem over x = [dv; f], the joint acceleration and
// the stacked contact force variables. Solving the problem is left to the
// caller's QP solver.
package invdyn

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/hammal/invdyn/constraint"
	"github.com/hammal/invdyn/contacts"
	"github.com/hammal/invdyn/gonumExtensions"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/spatial"
	"gonum.org/v1/gonum/mat"
)

// ErrStaleData is returned when the robot data was not computed from (q, v).
var ErrStaleData = errors.New("robot data was not computed from (q, v)")

// Formulation holds the active contacts of a controller.
type Formulation struct {
	name     string
	model    *robot.Model
	logger   golog.Logger
	contacts []*contactLevel
	t        float64
	computed bool
}

type contactLevel struct {
	contact contacts.Contact
	// Normal force of the last solution, NaN when unknown
	lastNormalForce float64
	transition      *transition
}

// transition ramps the max normal force of a contact from startMax down to
// its min normal force over duration, starting at start. A NaN start is set
// by the next Compute.
type transition struct {
	start, duration float64
	startMax        float64
}

// NewFormulation returns an empty formulation on model. A nil logger is
// replaced by a production logger named after the formulation.
func NewFormulation(name string, model *robot.Model, logger golog.Logger) *Formulation {
	if logger == nil {
		logger = golog.NewLogger(name)
	}
	return &Formulation{name: name, model: model, logger: logger}
}

// Name returns the formulation name.
func (f *Formulation) Name() string { return f.name }

// Time returns the time of the last Compute.
func (f *Formulation) Time() float64 { return f.t }

// AddContact makes c active. Contact names must be unique.
func (f *Formulation) AddContact(c contacts.Contact) error {
	if c == nil {
		return errors.New("nil contact")
	}
	if c.NForce() <= 0 || c.NMotion() <= 0 {
		return fmt.Errorf("contact %q has %d motion rows and %d force variables", c.Name(), c.NMotion(), c.NForce())
	}
	if c.Robot() != f.model {
		return fmt.Errorf("contact %q was built on robot %q, formulation %q uses %q",
			c.Name(), c.Robot().Name(), f.name, f.model.Name())
	}
	if _, ok := f.find(c.Name()); ok {
		return fmt.Errorf("formulation %q already has a contact named %q", f.name, c.Name())
	}
	f.contacts = append(f.contacts, &contactLevel{contact: c, lastNormalForce: math.NaN()})
	f.logger.Infof("added contact %q (%d motion rows, %d force variables)", c.Name(), c.NMotion(), c.NForce())
	return nil
}

// RemoveContact deactivates the named contact. With a positive duration the
// contact is ramped out: starting at the time of the last Compute (or of the
// first one if Compute has not run yet), its max
// normal force goes linearly from the last solved normal force (or its
// current max if no solution was reported) down to its min normal force,
// and the contact is dropped once the duration has elapsed.
func (f *Formulation) RemoveContact(name string, duration float64) error {
	index, ok := f.find(name)
	if !ok {
		return fmt.Errorf("formulation %q has no contact named %q", f.name, name)
	}
	if duration <= 0 {
		f.drop(index)
		f.logger.Infof("removed contact %q", name)
		return nil
	}
	level := f.contacts[index]
	c := level.contact
	startMax := c.MaxNormalForce()
	if !math.IsNaN(level.lastNormalForce) {
		startMax = math.Max(c.MinNormalForce(), math.Min(level.lastNormalForce, c.MaxNormalForce()))
	}
	if math.IsInf(startMax, 0) {
		return fmt.Errorf("contact %q: no finite normal force to ramp out from", name)
	}
	if err := c.SetMaxNormalForce(startMax); err != nil {
		return fmt.Errorf("starting transition: %w", err)
	}
	start := f.t
	if !f.computed {
		start = math.NaN()
	}
	level.transition = &transition{start: start, duration: duration, startMax: startMax}
	f.logger.Infof("removing contact %q over %vs, normal force %v -> %v", name, duration, startMax, c.MinNormalForce())
	return nil
}

// Contact returns the named active contact.
func (f *Formulation) Contact(name string) (contacts.Contact, bool) {
	index, ok := f.find(name)
	if !ok {
		return nil, false
	}
	return f.contacts[index].contact, true
}

// Contacts returns the active contacts in variable order.
func (f *Formulation) Contacts() []contacts.Contact {
	res := make([]contacts.Contact, len(f.contacts))
	for i, level := range f.contacts {
		res[i] = level.contact
	}
	return res
}

// NForce is the number of force variables of the active contacts.
func (f *Formulation) NForce() int {
	n := 0
	for _, level := range f.contacts {
		n += level.contact.NForce()
	}
	return n
}

// NMotion is the number of motion constraint rows of the active contacts.
func (f *Formulation) NMotion() int {
	n := 0
	for _, level := range f.contacts {
		n += level.contact.NMotion()
	}
	return n
}

func (f *Formulation) find(name string) (int, bool) {
	for i, level := range f.contacts {
		if level.contact.Name() == name {
			return i, true
		}
	}
	return 0, false
}

func (f *Formulation) drop(index int) {
	f.contacts = append(f.contacts[:index], f.contacts[index+1:]...)
}

// updateTransitions advances the ramps to time t and drops finished contacts.
func (f *Formulation) updateTransitions(t float64) {
	kept := f.contacts[:0]
	for _, level := range f.contacts {
		tr := level.transition
		if tr == nil {
			kept = append(kept, level)
			continue
		}
		c := level.contact
		if math.IsNaN(tr.start) {
			tr.start = t
		}
		alpha := (t - tr.start) / tr.duration
		if alpha >= 1 {
			f.logger.Infof("contact %q ramped out, removed", c.Name())
			continue
		}
		alpha = math.Max(alpha, 0)
		fMax := tr.startMax + alpha*(c.MinNormalForce()-tr.startMax)
		if err := c.SetMaxNormalForce(fMax); err != nil {
			f.logger.Warnf("removing contact %q: %v", c.Name(), err)
			continue
		}
		f.logger.Debugf("contact %q max normal force %v", c.Name(), fMax)
		kept = append(kept, level)
	}
	f.contacts = kept
}

// ContactBlock locates one contact in a Problem.
type ContactBlock struct {
	Name string
	// First motion row and number of motion rows
	MotionRow, NMotion int
	// First force constraint row and number of rows
	ForceRow, NForceRows int
	// First force variable, counted from the start of f (x[NV + ForceCol])
	ForceCol, NForce int
}

// WeightedTask is an objective term Weight * |A x - b|^2.
type WeightedTask struct {
	Weight float64
	Task   *constraint.Equality
}

// Problem is the contact part of the inverse dynamics problem over
// x = [dv; f]. Motion and Force are nil without active contacts.
type Problem struct {
	Time                float64
	NV, NMotion, NForce int
	// [J_c 0] x = b_c for every contact
	Motion *constraint.Equality
	// lb <= [0 B_c] x <= ub for every contact
	Force *constraint.Inequality
	// One regularization term per contact
	Regularization []WeightedTask
	Blocks         []ContactBlock
}

type contactResult struct {
	motion *constraint.Equality
	force  *constraint.Inequality
	reg    *constraint.Equality
}

// Compute advances the contact transitions to t, computes every active
// contact at (q, v) and stacks the results. The contacts are computed
// concurrently; data is only read.
func (f *Formulation) Compute(t float64, q, v mat.Vector, data *robot.Data) (*Problem, error) {
	if err := f.checkState(q, v, data); err != nil {
		return nil, err
	}
	f.updateTransitions(t)
	f.t = t
	f.computed = true

	results := make([]contactResult, len(f.contacts))
	var wg sync.WaitGroup
	wg.Add(len(f.contacts))
	for index, level := range f.contacts {
		go func(i int, c contacts.Contact) {
			defer wg.Done()
			results[i] = contactResult{
				motion: c.ComputeMotionConstraint(t, q, v, data),
				force:  c.ComputeForceConstraint(t, q, v, data),
				reg:    c.ComputeForceRegularizationTask(t, q, v, data),
			}
		}(index, level.contact)
	}
	wg.Wait()

	nv := f.model.NV()
	problem := &Problem{Time: t, NV: nv, NMotion: f.NMotion(), NForce: f.NForce()}
	if len(f.contacts) == 0 {
		return problem, nil
	}
	nForceRows := 0
	for _, res := range results {
		nForceRows += res.force.Rows()
	}

	nx := nv + problem.NForce
	A := mat.NewDense(problem.NMotion, nx, nil)
	b := mat.NewVecDense(problem.NMotion, nil)
	B := mat.NewDense(nForceRows, nx, nil)
	lb := mat.NewVecDense(nForceRows, nil)
	ub := mat.NewVecDense(nForceRows, nil)
	row, forceRow, col := 0, 0, 0
	for i, res := range results {
		c := f.contacts[i].contact
		block := ContactBlock{
			Name:      c.Name(),
			MotionRow: row, NMotion: res.motion.Rows(),
			ForceRow: forceRow, NForceRows: res.force.Rows(),
			ForceCol: col, NForce: c.NForce(),
		}
		gonumExtensions.SetBlock(A, row, 0, res.motion.Matrix())
		b.SliceVec(row, row+block.NMotion).(*mat.VecDense).CopyVec(res.motion.Vector())

		gonumExtensions.SetBlock(B, forceRow, nv+col, res.force.Matrix())
		lb.SliceVec(forceRow, forceRow+block.NForceRows).(*mat.VecDense).CopyVec(res.force.LowerBound())
		ub.SliceVec(forceRow, forceRow+block.NForceRows).(*mat.VecDense).CopyVec(res.force.UpperBound())

		regA := mat.NewDense(res.reg.Rows(), nx, nil)
		gonumExtensions.SetBlock(regA, 0, nv+col, res.reg.Matrix())
		problem.Regularization = append(problem.Regularization, WeightedTask{
			Weight: c.ForceRegularizationWeight(),
			Task:   constraint.NewEquality(res.reg.Name(), regA, res.reg.Vector()),
		})
		problem.Blocks = append(problem.Blocks, block)

		row += block.NMotion
		forceRow += block.NForceRows
		col += block.NForce
	}
	problem.Motion = constraint.NewEquality(f.name+"_contact_motion", A, b)
	problem.Force = constraint.NewInequality(f.name+"_contact_force", B, lb, ub)
	f.logger.Debugf("t = %v: %d contacts, %d motion rows, %d force variables", t, len(f.contacts), problem.NMotion, problem.NForce)
	return problem, nil
}

// ContactForce is the share of a solution belonging to one contact.
type ContactForce struct {
	Name string
	// The contact's force variables
	Forces *mat.VecDense
	// Projection of Forces on the contact normal
	NormalForce float64
	// Wrench at the contact frame, see contacts.Contact.ForceGeneratorMatrix
	Wrench spatial.Force
}

// ContactForces splits the stacked force variables f of a solution per
// contact. The normal forces are remembered as the starting point of later
// RemoveContact transitions.
func (f *Formulation) ContactForces(forces mat.Vector) ([]ContactForce, error) {
	if forces.Len() != f.NForce() {
		return nil, fmt.Errorf("formulation %q: %d force variables, expected %d", f.name, forces.Len(), f.NForce())
	}
	res := make([]ContactForce, 0, len(f.contacts))
	col := 0
	for _, level := range f.contacts {
		c := level.contact
		fc := sliceForces(forces, col, c.NForce())
		var wrench mat.VecDense
		wrench.MulVec(c.ForceGeneratorMatrix(), fc)
		level.lastNormalForce = c.NormalForce(fc)
		res = append(res, ContactForce{
			Name:        c.Name(),
			Forces:      fc,
			NormalForce: level.lastNormalForce,
			Wrench:      spatial.ForceFromVector(&wrench),
		})
		col += c.NForce()
	}
	return res, nil
}

// GeneralizedForce returns sum_c J_c^T G_c f_c, the joint torques produced by
// the stacked contact forces at the state data was computed from.
func (f *Formulation) GeneralizedForce(q, v mat.Vector, data *robot.Data, forces mat.Vector) (*mat.VecDense, error) {
	if err := f.checkState(q, v, data); err != nil {
		return nil, err
	}
	if forces.Len() != f.NForce() {
		return nil, fmt.Errorf("formulation %q: %d force variables, expected %d", f.name, forces.Len(), f.NForce())
	}
	tau := mat.NewVecDense(f.model.NV(), nil)
	col := 0
	for _, level := range f.contacts {
		c := level.contact
		fc := sliceForces(forces, col, c.NForce())
		var wrench, contribution mat.VecDense
		wrench.MulVec(c.ForceGeneratorMatrix(), fc)
		contribution.MulVec(c.WrenchJacobian(data).T(), &wrench)
		tau.AddVec(tau, &contribution)
		col += c.NForce()
	}
	return tau, nil
}

func sliceForces(forces mat.Vector, col, n int) *mat.VecDense {
	fc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		fc.SetVec(i, forces.AtVec(col+i))
	}
	return fc
}

func (f *Formulation) checkState(q, v mat.Vector, data *robot.Data) error {
	if q.Len() != f.model.NQ() || v.Len() != f.model.NV() {
		return fmt.Errorf("formulation %q: q has %d and v %d entries, model expects %d and %d",
			f.name, q.Len(), v.Len(), f.model.NQ(), f.model.NV())
	}
	if data == nil || !data.Matches(q, v) {
		return ErrStaleData
	}
	return nil
}
