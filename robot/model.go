// Package robot is the rigid body model the contacts are formulated against.
// A Model is a kinematic tree of single degree of freedom joints rooted at the
// world, with operational frames attached to its links. The per-instant
// quantities (placements, velocities, bias accelerations) live in a Data
// snapshot computed by Model.ComputeKinematics.
package robot

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/hammal/invdyn/spatial"
)

// JointType enumerates the supported joint kinds.
type JointType int

const (
	// Revolute joints rotate around their axis.
	Revolute JointType = iota
	// Prismatic joints translate along their axis.
	Prismatic
)

func (j JointType) String() string {
	switch j {
	case Revolute:
		return "revolute"
	case Prismatic:
		return "prismatic"
	default:
		return fmt.Sprintf("JointType(%d)", int(j))
	}
}

// World is the parent index of joints attached to the world.
const World = -1

// Joint is a single degree of freedom joint. Its position and velocity are
// q[Index] and v[Index].
type Joint struct {
	Name string
	Type JointType
	// Unit axis expressed in the joint frame
	Axis r3.Vector
	// Index of the parent joint, World for the root
	Parent int
	// Placement of the joint frame in the parent link frame at q = 0
	Placement spatial.SE3
	Index     int
}

// Frame is an operational frame rigidly attached to the link of Joint.
type Frame struct {
	Name      string
	Joint     int
	Placement spatial.SE3
}

// Model describes the kinematic tree. Joints are appended in topological
// order: a joint's parent always exists when it is added.
type Model struct {
	name     string
	joints   []Joint
	frames   []Frame
	support  [][]int
	jointIDs map[string]int
	frameIDs map[string]int
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{
		name:     name,
		jointIDs: make(map[string]int),
		frameIDs: make(map[string]int),
	}
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// AddJoint appends a joint to the tree. An empty parent attaches it to the
// world. It returns the joint index.
func (m *Model) AddJoint(name, parent string, kind JointType, axis r3.Vector, placement spatial.SE3) (int, error) {
	if _, ok := m.jointIDs[name]; ok {
		return 0, fmt.Errorf("joint %q already exists in model %q", name, m.name)
	}
	if kind != Revolute && kind != Prismatic {
		return 0, fmt.Errorf("joint %q: unsupported joint type %v", name, kind)
	}
	if axis.Norm() == 0 {
		return 0, fmt.Errorf("joint %q: zero axis", name)
	}
	parentID := World
	if parent != "" {
		id, ok := m.jointIDs[parent]
		if !ok {
			return 0, fmt.Errorf("joint %q: unknown parent joint %q", name, parent)
		}
		parentID = id
	}

	id := len(m.joints)
	m.joints = append(m.joints, Joint{
		Name:      name,
		Type:      kind,
		Axis:      axis.Normalize(),
		Parent:    parentID,
		Placement: placement,
		Index:     id,
	})
	support := []int{id}
	if parentID != World {
		support = append(append([]int(nil), m.support[parentID]...), id)
	}
	m.support = append(m.support, support)
	m.jointIDs[name] = id
	return id, nil
}

// AddFrame attaches an operational frame to the link moved by joint.
func (m *Model) AddFrame(name, joint string, placement spatial.SE3) (int, error) {
	if _, ok := m.frameIDs[name]; ok {
		return 0, fmt.Errorf("frame %q already exists in model %q", name, m.name)
	}
	jointID, ok := m.jointIDs[joint]
	if !ok {
		return 0, fmt.Errorf("frame %q: unknown joint %q", name, joint)
	}
	id := len(m.frames)
	m.frames = append(m.frames, Frame{Name: name, Joint: jointID, Placement: placement})
	m.frameIDs[name] = id
	return id, nil
}

// NQ is the dimension of the configuration space.
func (m *Model) NQ() int {
	return len(m.joints)
}

// NV is the dimension of the velocity space.
func (m *Model) NV() int {
	return len(m.joints)
}

// FrameID returns the index of the named frame.
func (m *Model) FrameID(name string) (int, error) {
	id, ok := m.frameIDs[name]
	if !ok {
		return 0, fmt.Errorf("unknown frame %q in model %q", name, m.name)
	}
	return id, nil
}

// Frame returns the frame with the given index.
func (m *Model) Frame(id int) Frame {
	m.checkFrame(id)
	return m.frames[id]
}

// Joint returns the joint with the given index.
func (m *Model) Joint(id int) Joint {
	if id < 0 || id >= len(m.joints) {
		panic(errors.New("joint index out of range"))
	}
	return m.joints[id]
}

// Support returns the joints between the world and joint, root first.
func (m *Model) Support(joint int) []int {
	return append([]int(nil), m.support[joint]...)
}

func (m *Model) checkFrame(id int) {
	if id < 0 || id >= len(m.frames) {
		panic(errors.New("frame index out of range"))
	}
}
