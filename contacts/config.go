package contacts

import (
	"github.com/golang/geo/r3"
)

// PointConfig configures ContactPoint and ContactNormal.
type PointConfig struct {
	// Name of the robot frame in contact
	Frame string `json:"frame"`
	// Contact normal in world axes, pointing out of the support surface
	Normal r3.Vector `json:"normal"`
	// Coulomb friction coefficient, unused by ContactNormal
	FrictionCoefficient float64 `json:"friction_coefficient"`
	MinNormalForce      float64 `json:"min_normal_force"`
	MaxNormalForce      float64 `json:"max_normal_force"`
	// Weight of the force regularization task
	RegularizationWeight float64 `json:"regularization_weight"`
	// Gains of the motion task, applied to every row
	Kp float64 `json:"kp"`
	Kd float64 `json:"kd"`
}

// DefaultPointConfig returns the configuration of a point on flat ground.
func DefaultPointConfig(frame string) PointConfig {
	return PointConfig{
		Frame:                frame,
		Normal:               r3.Vector{Z: 1},
		FrictionCoefficient:  0.3,
		MinNormalForce:       0,
		MaxNormalForce:       1000,
		RegularizationWeight: 1e-5,
	}
}

// Contact6dConfig configures Contact6d.
type Contact6dConfig struct {
	Frame string `json:"frame"`
	// Patch corners in the contact frame
	Corners [4]r3.Vector `json:"corners"`
	// Contact normal in the contact frame
	Normal              r3.Vector `json:"normal"`
	FrictionCoefficient float64   `json:"friction_coefficient"`
	// Bounds on the summed normal force of the four corners
	MinNormalForce       float64 `json:"min_normal_force"`
	MaxNormalForce       float64 `json:"max_normal_force"`
	RegularizationWeight float64 `json:"regularization_weight"`
	// Per row weights of the wrench regularization [force; moment]
	WrenchWeights [6]float64 `json:"wrench_weights"`
	Kp            float64    `json:"kp"`
	Kd            float64    `json:"kd"`
}

// RectangleCorners returns the corners of a lx by ly rectangle centred under
// the contact frame, at height -lz along the frame z axis.
func RectangleCorners(lx, ly, lz float64) [4]r3.Vector {
	return [4]r3.Vector{
		{X: -lx / 2, Y: -ly / 2, Z: -lz},
		{X: -lx / 2, Y: ly / 2, Z: -lz},
		{X: lx / 2, Y: -ly / 2, Z: -lz},
		{X: lx / 2, Y: ly / 2, Z: -lz},
	}
}

// DefaultContact6dConfig returns the configuration of a flat foot sole.
func DefaultContact6dConfig(frame string) Contact6dConfig {
	return Contact6dConfig{
		Frame:                frame,
		Corners:              RectangleCorners(0.2, 0.1, 0),
		Normal:               r3.Vector{Z: 1},
		FrictionCoefficient:  0.3,
		MinNormalForce:       0,
		MaxNormalForce:       1000,
		RegularizationWeight: 1e-5,
		WrenchWeights:        [6]float64{1, 1, 1e-3, 2, 2, 2},
	}
}
