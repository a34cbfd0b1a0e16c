package types

import (
	"fmt"
	"math"
	"strings"
)

// Category is the broad class a trigger belongs to. L1 and HLT triggers have
// different absolute rate ceilings and never share fit models.
type Category string

const (
	CategoryL1  Category = "L1"
	CategoryHLT Category = "HLT"
)

// ParseCategory maps a free-form string to a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L1":
		return CategoryL1, nil
	case "HLT":
		return CategoryHLT, nil
	default:
		return "", fmt.Errorf("types: unknown category %q", s)
	}
}

// CategoryOf infers the category from the trigger naming convention.
// Names starting with "L1_" are level-1 seeds; everything else is HLT.
func CategoryOf(name string) Category {
	if strings.HasPrefix(name, "L1_") {
		return CategoryL1
	}
	return CategoryHLT
}

// Group returns the fit-store namespace used for models of this category.
func (c Category) Group() string {
	return strings.ToLower(string(c))
}

// Trigger is one monitored entity.
type Trigger struct {
	Name     string
	Category Category
}

// Sample is one historical (input, output) observation used for fitting.
// X is pileup, Y is the rate in Hz (per colliding bunch when normalised).
type Sample struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Valid bool    `json:"valid" yaml:"valid"`
}

// ModelType is the functional form of a fit.
type ModelType string

const (
	ModelNone   ModelType = ""
	ModelLinear ModelType = "linear"
	ModelQuad   ModelType = "quad"
	ModelCube   ModelType = "cube"
	ModelExp    ModelType = "exp"
	ModelSinh   ModelType = "sinh"
)

// ModelTypes is the ordered set of fittable model types.
var ModelTypes = []ModelType{ModelLinear, ModelQuad, ModelCube, ModelExp, ModelSinh}

// ParseModelType validates a model type name.
func ParseModelType(s string) (ModelType, error) {
	for _, mt := range ModelTypes {
		if string(mt) == s {
			return mt, nil
		}
	}
	return ModelNone, fmt.Errorf("types: unknown model type %q", s)
}

// NumParams is the number of coefficients the model type uses.
func (m ModelType) NumParams() int {
	switch m {
	case ModelLinear:
		return 2
	case ModelQuad:
		return 3
	case ModelCube, ModelExp:
		return 4
	case ModelSinh:
		return 3
	default:
		return 0
	}
}

// FitModel is a fitted rate model for one trigger.
//
// Params layout by type:
//
//	linear: y = p0 + p1*x
//	quad:   y = p0 + p1*x + p2*x^2
//	cube:   y = p0 + p1*x + p2*x^2 + p3*x^3
//	exp:    y = p0 + p1*exp(p2 + p3*x)
//	sinh:   y = p1*sinh(p0*x) + p2
type FitModel struct {
	Trigger   string     `json:"trigger"`
	Group     string     `json:"group"`
	Type      ModelType  `json:"type"`
	Params    [4]float64 `json:"params"`
	Errors    [4]float64 `json:"errors"`
	MSE       float64    `json:"mse"`
	ChiSquare float64    `json:"chi_square"`
	Points    int        `json:"points"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Sentinel returns the zero-valued model used when fitting is infeasible.
func Sentinel(trigger, group string) FitModel {
	return FitModel{Trigger: trigger, Group: group}
}

// IsSentinel reports whether m carries no usable fit.
func (m FitModel) IsSentinel() bool {
	return m.Type == ModelNone
}

// Eval evaluates the model's closed form at x. Sentinel models evaluate to 0.
func (m FitModel) Eval(x float64) float64 {
	p := m.Params
	switch m.Type {
	case ModelLinear:
		return p[0] + p[1]*x
	case ModelQuad:
		return p[0] + p[1]*x + p[2]*x*x
	case ModelCube:
		return p[0] + p[1]*x + p[2]*x*x + p[3]*x*x*x
	case ModelExp:
		return p[0] + p[1]*math.Exp(p[2]+p[3]*x)
	case ModelSinh:
		return p[1]*math.Sinh(p[0]*x) + p[2]
	default:
		return 0
	}
}
