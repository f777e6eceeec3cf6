package config

import (
	"fmt"

	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/robot"
	"github.com/banshee-data/tmsnav/internal/telemetry"
)

// DefaultPlanningPath is the path to the canonical planning defaults file.
const DefaultPlanningPath = "config/planning.defaults.json"

// PlanningConfig holds the operator-tunable planning parameters. Omitted
// fields fall back to the defaults returned by the Get* methods, so partial
// files are safe.
type PlanningConfig struct {
	// TRE indicator
	ColorChangeThresholdMm *float64 `json:"color_change_threshold_mm,omitempty"`
	FineTuneThresholdMm    *float64 `json:"fine_tune_threshold_mm,omitempty"`

	// Pose planning
	PlanOnBrain        *bool    `json:"plan_on_brain,omitempty"`
	ToolRotationOption *string  `json:"tool_rotation_option,omitempty"` // skin, skinclosest, cortex
	GridSpacingMm      *float64 `json:"grid_spacing_mm,omitempty"`
	GridCount          *int     `json:"grid_count,omitempty"`
	RandomPosRangeMm   *float64 `json:"random_position_range_mm,omitempty"`
	RandomAngRangeDeg  *float64 `json:"random_angle_range_deg,omitempty"`

	// Robot jog steps
	TranslationStepMm *float64 `json:"translation_step_mm,omitempty"`
	RotationStepDeg   *float64 `json:"rotation_step_deg,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultPlanningConfig returns a config with every field set to its
// default.
func DefaultPlanningConfig() *PlanningConfig {
	return &PlanningConfig{
		ColorChangeThresholdMm: ptrFloat64(telemetry.DefaultColorChangeThresholdMm),
		FineTuneThresholdMm:    ptrFloat64(telemetry.FineTuneThresholdMm),
		PlanOnBrain:            ptrBool(false),
		ToolRotationOption:     ptrString(plan.PolicySkin.String()),
		GridSpacingMm:          ptrFloat64(plan.DefaultGridSpacing),
		GridCount:              ptrInt(plan.DefaultGridCount),
		RandomPosRangeMm:       ptrFloat64(plan.DefaultRandomPosRangeMm),
		RandomAngRangeDeg:      ptrFloat64(plan.DefaultRandomAngRangeDeg),
		TranslationStepMm:      ptrFloat64(robot.DefaultTranslationStepMm),
		RotationStepDeg:        ptrFloat64(robot.DefaultRotationStepDeg),
	}
}

// LoadPlanningConfig loads a PlanningConfig from a JSON file.
func LoadPlanningConfig(path string) (*PlanningConfig, error) {
	cfg := &PlanningConfig{}
	if err := readJSON(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultPlanningConfig loads DefaultPlanningPath from the working
// directory or one of its parents. Panics if it cannot, intended for test
// setup.
func MustLoadDefaultPlanningConfig() *PlanningConfig {
	path, err := findDefault(DefaultPlanningPath)
	if err != nil {
		panic(err)
	}
	cfg, err := LoadPlanningConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks that the configuration values are valid.
func (c *PlanningConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"color_change_threshold_mm", c.ColorChangeThresholdMm},
		{"fine_tune_threshold_mm", c.FineTuneThresholdMm},
		{"grid_spacing_mm", c.GridSpacingMm},
		{"translation_step_mm", c.TranslationStepMm},
		{"rotation_step_deg", c.RotationStepDeg},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}
	if c.RandomPosRangeMm != nil && *c.RandomPosRangeMm < 0 {
		return fmt.Errorf("random_position_range_mm must be non-negative, got %f", *c.RandomPosRangeMm)
	}
	if c.RandomAngRangeDeg != nil && (*c.RandomAngRangeDeg < 0 || *c.RandomAngRangeDeg > 180) {
		return fmt.Errorf("random_angle_range_deg must be between 0 and 180, got %f", *c.RandomAngRangeDeg)
	}
	if c.GridCount != nil && *c.GridCount < 1 {
		return fmt.Errorf("grid_count must be at least 1, got %d", *c.GridCount)
	}
	if c.ToolRotationOption != nil {
		p, err := plan.ParsePolicy(*c.ToolRotationOption)
		if err != nil {
			return err
		}
		if p == plan.PolicyCombined {
			return fmt.Errorf("tool_rotation_option %q: %w", *c.ToolRotationOption, plan.ErrNotImplemented)
		}
	}
	return nil
}

// GetColorChangeThresholdMm returns the color_change_threshold_mm value or the default.
func (c *PlanningConfig) GetColorChangeThresholdMm() float64 {
	if c.ColorChangeThresholdMm == nil {
		return telemetry.DefaultColorChangeThresholdMm
	}
	return *c.ColorChangeThresholdMm
}

// GetFineTuneThresholdMm returns the fine_tune_threshold_mm value or the default.
func (c *PlanningConfig) GetFineTuneThresholdMm() float64 {
	if c.FineTuneThresholdMm == nil {
		return telemetry.FineTuneThresholdMm
	}
	return *c.FineTuneThresholdMm
}

// GetPlanOnBrain returns the plan_on_brain value or the default.
func (c *PlanningConfig) GetPlanOnBrain() bool {
	if c.PlanOnBrain == nil {
		return false
	}
	return *c.PlanOnBrain
}

// GetPolicy parses tool_rotation_option. Validate has already rejected
// unknown names; anything unparseable here falls back to skin.
func (c *PlanningConfig) GetPolicy() plan.Policy {
	if c.ToolRotationOption == nil {
		return plan.PolicySkin
	}
	p, err := plan.ParsePolicy(*c.ToolRotationOption)
	if err != nil {
		return plan.PolicySkin
	}
	return p
}

// GetGridSpacingMm returns the grid_spacing_mm value or the default.
func (c *PlanningConfig) GetGridSpacingMm() float64 {
	if c.GridSpacingMm == nil {
		return plan.DefaultGridSpacing
	}
	return *c.GridSpacingMm
}

// GetGridCount returns the grid_count value or the default.
func (c *PlanningConfig) GetGridCount() int {
	if c.GridCount == nil {
		return plan.DefaultGridCount
	}
	return *c.GridCount
}

// GetRandomPosRangeMm returns the random_position_range_mm value or the default.
func (c *PlanningConfig) GetRandomPosRangeMm() float64 {
	if c.RandomPosRangeMm == nil {
		return plan.DefaultRandomPosRangeMm
	}
	return *c.RandomPosRangeMm
}

// GetRandomAngRangeDeg returns the random_angle_range_deg value or the default.
func (c *PlanningConfig) GetRandomAngRangeDeg() float64 {
	if c.RandomAngRangeDeg == nil {
		return plan.DefaultRandomAngRangeDeg
	}
	return *c.RandomAngRangeDeg
}

// GetTranslationStepMm returns the translation_step_mm value or the default.
func (c *PlanningConfig) GetTranslationStepMm() float64 {
	if c.TranslationStepMm == nil {
		return robot.DefaultTranslationStepMm
	}
	return *c.TranslationStepMm
}

// GetRotationStepDeg returns the rotation_step_deg value or the default.
func (c *PlanningConfig) GetRotationStepDeg() float64 {
	if c.RotationStepDeg == nil {
		return robot.DefaultRotationStepDeg
	}
	return *c.RotationStepDeg
}

// PlannerOptions converts the config into planner options.
func (c *PlanningConfig) PlannerOptions() plan.Options {
	return plan.Options{
		PlanOnBrain:       c.GetPlanOnBrain(),
		Policy:            c.GetPolicy(),
		RandomPosRangeMm:  c.GetRandomPosRangeMm(),
		RandomAngRangeDeg: c.GetRandomAngRangeDeg(),
	}
}

// RobotSteps converts the config into robot jog steps.
func (c *PlanningConfig) RobotSteps() robot.Steps {
	return robot.Steps{TranslationMm: c.GetTranslationStepMm(), RotationDeg: c.GetRotationStepDeg()}
}
