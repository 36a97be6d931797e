package invdyn

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/contacts"
	"github.com/hammal/invdyn/ode"
	"github.com/hammal/invdyn/robot"
	"github.com/hammal/invdyn/spatial"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// newFoot builds a free floating foot with a sole frame and a toe frame.
func newFoot(t *testing.T) *robot.Model {
	t.Helper()
	m := robot.NewModel("foot")
	parent := ""
	for _, j := range []struct {
		name string
		kind robot.JointType
		axis r3.Vector
	}{
		{"x", robot.Prismatic, r3.Vector{X: 1}},
		{"y", robot.Prismatic, r3.Vector{Y: 1}},
		{"z", robot.Prismatic, r3.Vector{Z: 1}},
		{"roll", robot.Revolute, r3.Vector{X: 1}},
		{"pitch", robot.Revolute, r3.Vector{Y: 1}},
		{"yaw", robot.Revolute, r3.Vector{Z: 1}},
	} {
		if _, err := m.AddJoint(j.name, parent, j.kind, j.axis, spatial.Identity()); err != nil {
			t.Fatal(err)
		}
		parent = j.name
	}
	if _, err := m.AddFrame("sole", "yaw", spatial.Translation(r3.Vector{Z: -0.05})); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddFrame("toe", "yaw", spatial.Translation(r3.Vector{X: 0.12, Z: -0.05})); err != nil {
		t.Fatal(err)
	}
	return m
}

func footState(m *robot.Model) (*mat.VecDense, *mat.VecDense, *robot.Data) {
	q := mat.NewVecDense(6, []float64{0.1, 0.05, 0.3, 0.02, -0.1, 0.4})
	v := mat.NewVecDense(6, []float64{0.2, -0.1, 0.05, 0.3, 0.1, -0.2})
	data := m.NewData()
	m.ComputeKinematics(data, q, v)
	return q, v, data
}

// newStance returns a formulation with a point contact on the toe and a
// planar contact on the sole.
func newStance(t *testing.T, m *robot.Model) (*Formulation, *contacts.ContactPoint, *contacts.Contact6d) {
	t.Helper()
	f := NewFormulation("stance", m, golog.NewTestLogger(t))
	toe, err := contacts.NewContactPoint("toe", m, contacts.DefaultPointConfig("toe"))
	if err != nil {
		t.Fatal(err)
	}
	sole, err := contacts.NewContact6d("sole", m, contacts.DefaultContact6dConfig("sole"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AddContact(toe); err != nil {
		t.Fatal(err)
	}
	if err := f.AddContact(sole); err != nil {
		t.Fatal(err)
	}
	return f, toe, sole
}

func TestContactBookkeeping(t *testing.T) {
	m := newFoot(t)
	f, toe, _ := newStance(t, m)
	if f.NForce() != 15 || f.NMotion() != 9 {
		t.Fatalf("%d force variables and %d motion rows", f.NForce(), f.NMotion())
	}
	if err := f.AddContact(toe); err == nil {
		t.Error("duplicate contact accepted")
	}
	if err := f.AddContact(nil); err == nil {
		t.Error("nil contact accepted")
	}
	if err := f.RemoveContact("heel", 0); err == nil {
		t.Error("removing an unknown contact succeeded")
	}
	if c, ok := f.Contact("toe"); !ok || c != toe {
		t.Error("toe contact not found")
	}
	if err := f.RemoveContact("toe", 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Contact("toe"); ok {
		t.Error("toe contact still active")
	}
	if len(f.Contacts()) != 1 || f.NForce() != 12 {
		t.Errorf("%d contacts with %d force variables left", len(f.Contacts()), f.NForce())
	}
}

func TestAddContactRejectsOtherRobot(t *testing.T) {
	m := newFoot(t)
	f := NewFormulation("stance", m, golog.NewTestLogger(t))
	arm := robot.NewModel("arm")
	if _, err := arm.AddJoint("shoulder", "", robot.Revolute, r3.Vector{Z: 1}, spatial.Identity()); err != nil {
		t.Fatal(err)
	}
	if _, err := arm.AddFrame("toe", "shoulder", spatial.Translation(r3.Vector{X: 0.3})); err != nil {
		t.Fatal(err)
	}
	tip, err := contacts.NewContactPoint("tip", arm, contacts.DefaultPointConfig("toe"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AddContact(tip); err == nil {
		t.Fatal("contact on another robot accepted")
	}
	if len(f.Contacts()) != 0 {
		t.Errorf("%d contacts active", len(f.Contacts()))
	}
	q, v, data := footState(m)
	if _, err := f.Compute(0, q, v, data); err != nil {
		t.Error(err)
	}
}

func TestNilLogger(t *testing.T) {
	f := NewFormulation("default", newFoot(t), nil)
	if f.logger == nil {
		t.Fatal("no logger")
	}
}

func TestComputeRejectsStaleData(t *testing.T) {
	m := newFoot(t)
	f, _, _ := newStance(t, m)
	q, v, data := footState(m)
	moved := mat.VecDenseCopyOf(q)
	moved.SetVec(0, 1)
	if _, err := f.Compute(0, moved, v, data); !errors.Is(err, ErrStaleData) {
		t.Errorf("stale data accepted, err = %v", err)
	}
	if _, err := f.Compute(0, q, v, nil); !errors.Is(err, ErrStaleData) {
		t.Errorf("nil data accepted, err = %v", err)
	}
	if _, err := f.Compute(0, mat.NewVecDense(3, nil), v, data); err == nil {
		t.Error("short configuration accepted")
	}
}

func TestComputeStacksContacts(t *testing.T) {
	m := newFoot(t)
	f, toe, sole := newStance(t, m)
	q, v, data := footState(m)
	problem, err := f.Compute(0.5, q, v, data)
	if err != nil {
		t.Fatal(err)
	}
	nv := m.NV()
	if r, c := problem.Motion.Matrix().Dims(); r != 9 || c != nv+15 {
		t.Fatalf("motion equality is %dx%d", r, c)
	}
	if r, c := problem.Force.Matrix().Dims(); r != 5+17 || c != nv+15 {
		t.Fatalf("force inequality is %dx%d", r, c)
	}
	want := []ContactBlock{
		{Name: "toe", MotionRow: 0, NMotion: 3, ForceRow: 0, NForceRows: 5, ForceCol: 0, NForce: 3},
		{Name: "sole", MotionRow: 3, NMotion: 6, ForceRow: 5, NForceRows: 17, ForceCol: 3, NForce: 12},
	}
	for i, block := range problem.Blocks {
		if block != want[i] {
			t.Errorf("block %d is %+v, expected %+v", i, block, want[i])
		}
	}

	A := mat.DenseCopyOf(problem.Motion.Matrix())
	B := mat.DenseCopyOf(problem.Force.Matrix())
	for i, c := range []contacts.Contact{toe, sole} {
		block := problem.Blocks[i]
		motion := A.Slice(block.MotionRow, block.MotionRow+block.NMotion, 0, nv)
		if !mat.Equal(motion, c.MotionConstraint().Matrix()) {
			t.Errorf("%s: motion block differs from the contact's constraint", c.Name())
		}
		force := B.Slice(block.ForceRow, block.ForceRow+block.NForceRows, nv+block.ForceCol, nv+block.ForceCol+block.NForce)
		if !mat.Equal(force, c.ForceConstraint().Matrix()) {
			t.Errorf("%s: force block differs from the contact's constraint", c.Name())
		}
		if mat.Norm(B.Slice(block.ForceRow, block.ForceRow+block.NForceRows, 0, nv), 1) != 0 {
			t.Errorf("%s: force rows depend on dv", c.Name())
		}
		reg := problem.Regularization[i]
		if reg.Weight != c.ForceRegularizationWeight() {
			t.Errorf("%s: regularization weight %v", c.Name(), reg.Weight)
		}
		if !mat.Equal(reg.Task.Vector(), c.ForceRegularizationTask().Vector()) {
			t.Errorf("%s: regularization target differs", c.Name())
		}
	}
	if lb := problem.Force.LowerBound().AtVec(4); lb != toe.MinNormalForce() {
		t.Errorf("toe normal force lower bound %v", lb)
	}
	if ub := problem.Force.UpperBound().AtVec(21); ub != sole.MaxNormalForce() {
		t.Errorf("sole normal force upper bound %v", ub)
	}
	if f.Time() != 0.5 {
		t.Errorf("time %v", f.Time())
	}
}

func TestComputeWithoutContacts(t *testing.T) {
	m := newFoot(t)
	f := NewFormulation("flight", m, golog.NewTestLogger(t))
	q, v, data := footState(m)
	problem, err := f.Compute(0, q, v, data)
	if err != nil {
		t.Fatal(err)
	}
	if problem.Motion != nil || problem.Force != nil || problem.NForce != 0 {
		t.Errorf("empty formulation produced %+v", problem)
	}
}

func TestContactForces(t *testing.T) {
	m := newFoot(t)
	f, _, sole := newStance(t, m)
	forces := mat.NewVecDense(15, nil)
	forces.SetVec(0, 3)
	forces.SetVec(2, 40)
	for i := 0; i < 4; i++ {
		forces.SetVec(3+3*i+2, 25)
	}
	split, err := f.ContactForces(forces)
	if err != nil {
		t.Fatal(err)
	}
	if split[0].Name != "toe" || split[0].NormalForce != 40 {
		t.Errorf("toe: %+v", split[0])
	}
	if split[0].Wrench.Linear != (r3.Vector{X: 3, Z: 40}) || split[0].Wrench.Angular != (r3.Vector{}) {
		t.Errorf("toe wrench %+v", split[0].Wrench)
	}
	if split[1].NormalForce != 100 || math.Abs(split[1].Wrench.Linear.Z-100) > 1e-12 {
		t.Errorf("sole: normal force %v, wrench %+v", split[1].NormalForce, split[1].Wrench)
	}
	if split[1].Forces.Len() != sole.NForce() {
		t.Errorf("sole has %d forces", split[1].Forces.Len())
	}
	if _, err := f.ContactForces(mat.NewVecDense(3, nil)); err == nil {
		t.Error("short force vector accepted")
	}
}

// The joint torques of the contact forces deliver the same power as the
// contact wrenches on the contact frame velocities.
func TestGeneralizedForcePower(t *testing.T) {
	m := newFoot(t)
	f, _, _ := newStance(t, m)
	q, v, data := footState(m)
	forces := mat.NewVecDense(15, []float64{
		3, -1, 40,
		1, 0, 25, 0, 2, 30, -1, 0, 10, 0, 0, 35,
	})
	tau, err := f.GeneralizedForce(q, v, data, forces)
	if err != nil {
		t.Fatal(err)
	}
	split, err := f.ContactForces(forces)
	if err != nil {
		t.Fatal(err)
	}
	toe, _ := m.FrameID("toe")
	sole, _ := m.FrameID("sole")
	power := mat.Dot(split[0].Wrench.Vector(), m.FrameVelocity(data, toe, robot.LocalWorldAligned).Vector()) +
		mat.Dot(split[1].Wrench.Vector(), m.FrameVelocity(data, sole, robot.Local).Vector())
	if got := mat.Dot(tau, v); !scalar.EqualWithinAbsOrRel(got, power, 1e-10, 1e-10) {
		t.Errorf("joint power %v, contact power %v", got, power)
	}
}

func TestRemoveContactRamp(t *testing.T) {
	m := newFoot(t)
	f, toe, _ := newStance(t, m)
	q, v, data := footState(m)
	if _, err := f.Compute(0, q, v, data); err != nil {
		t.Fatal(err)
	}
	forces := mat.NewVecDense(15, nil)
	forces.SetVec(2, 400)
	if _, err := f.ContactForces(forces); err != nil {
		t.Fatal(err)
	}
	if err := f.RemoveContact("toe", 1); err != nil {
		t.Fatal(err)
	}

	var ramp plotter.XYs
	for _, time := range []float64{0.25, 0.5, 0.75} {
		problem, err := f.Compute(time, q, v, data)
		if err != nil {
			t.Fatal(err)
		}
		want := 400 * (1 - time)
		if got := toe.MaxNormalForce(); math.Abs(got-want) > 1e-9 {
			t.Errorf("t = %v: max normal force %v, expected %v", time, got, want)
		}
		if got := problem.Force.UpperBound().AtVec(4); math.Abs(got-want) > 1e-9 {
			t.Errorf("t = %v: problem bound %v, expected %v", time, got, want)
		}
		ramp = append(ramp, plotter.XY{X: time, Y: toe.MaxNormalForce()})
	}
	problem, err := f.Compute(1, q, v, data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Contact("toe"); ok || problem.NForce != 12 {
		t.Errorf("toe contact still active after the transition, %d force variables", problem.NForce)
	}

	p := plot.New()
	p.Title.Text = "toe contact removal"
	p.X.Label.Text = "t [s]"
	p.Y.Label.Text = "max normal force [N]"
	if err := plotutil.AddLinePoints(p, "max", ramp); err != nil {
		t.Fatal(err)
	}
	if err := p.Save(4*vg.Inch, 3*vg.Inch, filepath.Join(t.TempDir(), "ramp.png")); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveContactBeforeFirstCompute(t *testing.T) {
	m := newFoot(t)
	f, toe, _ := newStance(t, m)
	q, v, data := footState(m)
	if err := f.RemoveContact("toe", 1); err != nil {
		t.Fatal(err)
	}
	// The ramp starts at the first Compute, not at time zero.
	for _, time := range []float64{10, 10.5} {
		if _, err := f.Compute(time, q, v, data); err != nil {
			t.Fatal(err)
		}
		if _, ok := f.Contact("toe"); !ok {
			t.Fatalf("t = %v: toe contact dropped before its transition ended", time)
		}
	}
	if want := 1000 * 0.5; math.Abs(toe.MaxNormalForce()-want) > 1e-9 {
		t.Errorf("max normal force %v, expected %v", toe.MaxNormalForce(), want)
	}
	if _, err := f.Compute(11, q, v, data); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Contact("toe"); ok {
		t.Error("toe contact still active after its transition")
	}
}

func TestGeneralizedForceRejectsStaleData(t *testing.T) {
	m := newFoot(t)
	f, _, _ := newStance(t, m)
	q, v, data := footState(m)
	forces := mat.NewVecDense(f.NForce(), nil)
	if _, err := f.GeneralizedForce(q, v, nil, forces); !errors.Is(err, ErrStaleData) {
		t.Errorf("nil data accepted, err = %v", err)
	}
	moved := mat.VecDenseCopyOf(q)
	moved.SetVec(3, 1)
	if _, err := f.GeneralizedForce(moved, v, data, forces); !errors.Is(err, ErrStaleData) {
		t.Errorf("stale data accepted, err = %v", err)
	}
	if _, err := f.GeneralizedForce(q, v, data, forces); err != nil {
		t.Error(err)
	}
}

func TestRemoveContactNeedsFiniteForce(t *testing.T) {
	m := newFoot(t)
	f := NewFormulation("stance", m, golog.NewTestLogger(t))
	config := contacts.DefaultPointConfig("toe")
	config.MaxNormalForce = math.Inf(1)
	toe, err := contacts.NewContactPoint("toe", m, config)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AddContact(toe); err != nil {
		t.Fatal(err)
	}
	if err := f.RemoveContact("toe", 1); err == nil {
		t.Error("ramp from an unbounded force accepted")
	}
	if _, err := f.ContactForces(mat.NewVecDense(3, []float64{0, 0, 80})); err != nil {
		t.Fatal(err)
	}
	if err := f.RemoveContact("toe", 1); err != nil {
		t.Fatal(err)
	}
	if toe.MaxNormalForce() != 80 {
		t.Errorf("ramp starts at %v", toe.MaxNormalForce())
	}
}

// Integrating the minimum norm acceleration that satisfies the motion
// equality keeps a contact point in place.
func TestContactPointStaysInPlace(t *testing.T) {
	m := newFoot(t)
	f := NewFormulation("stance", m, golog.NewTestLogger(t))
	toe, err := contacts.NewContactPoint("toe", m, contacts.DefaultPointConfig("toe"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AddContact(toe); err != nil {
		t.Fatal(err)
	}
	nv := m.NV()
	id, _ := m.FrameID("toe")
	q, vr, data := footState(m)

	// Remove the part of vr that moves the toe.
	J := m.FrameJacobian(data, id, robot.LocalWorldAligned).Slice(0, 3, 0, nv)
	var toeVel, correction mat.VecDense
	toeVel.MulVec(J, vr)
	if err := correction.SolveVec(J, &toeVel); err != nil {
		t.Fatal(err)
	}
	v := mat.NewVecDense(nv, nil)
	v.SubVec(vr, &correction)
	m.ComputeKinematics(data, q, v)
	start := m.FramePlacement(data, id).Translation

	state := mat.NewVecDense(2*nv, nil)
	state.SliceVec(0, nv).(*mat.VecDense).CopyVec(q)
	state.SliceVec(nv, 2*nv).(*mat.VecDense).CopyVec(v)
	system := ode.SystemFunc(func(t float64, x mat.Vector) mat.Vector {
		q, v := mat.NewVecDense(nv, nil), mat.NewVecDense(nv, nil)
		for i := 0; i < nv; i++ {
			q.SetVec(i, x.AtVec(i))
			v.SetVec(i, x.AtVec(nv+i))
		}
		data := m.NewData()
		m.ComputeKinematics(data, q, v)
		problem, err := f.Compute(t, q, v, data)
		if err != nil {
			panic(err)
		}
		A := mat.DenseCopyOf(problem.Motion.Matrix()).Slice(0, problem.NMotion, 0, nv)
		var dv mat.VecDense
		if err := dv.SolveVec(A, problem.Motion.Vector()); err != nil {
			panic(err)
		}
		res := mat.NewVecDense(2*nv, nil)
		for i := 0; i < nv; i++ {
			res.SetVec(i, v.AtVec(i))
			res.SetVec(nv+i, dv.AtVec(i))
		}
		return res
	})
	ode.NewRK4().Integrate(0, 0.5, 500, state, system)

	q.CopyVec(state.SliceVec(0, nv))
	v.CopyVec(state.SliceVec(nv, 2*nv))
	m.ComputeKinematics(data, q, v)
	end := m.FramePlacement(data, id).Translation
	if d := end.Sub(start).Norm(); d > 1e-7 {
		t.Errorf("toe moved by %v from %v to %v", d, start, end)
	}
	if mat.Equal(q, mat.NewVecDense(nv, []float64{0.1, 0.05, 0.3, 0.02, -0.1, 0.4})) {
		t.Error("the foot did not move at all")
	}
}
