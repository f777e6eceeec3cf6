package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/tmsnav/internal/plan"
	"github.com/banshee-data/tmsnav/internal/protocol"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultPlanningConfig(t *testing.T) {
	cfg := DefaultPlanningConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.GetColorChangeThresholdMm() != 4.0 {
		t.Errorf("GetColorChangeThresholdMm() = %f, want 4.0", cfg.GetColorChangeThresholdMm())
	}
	if cfg.GetFineTuneThresholdMm() != 15.0 {
		t.Errorf("GetFineTuneThresholdMm() = %f, want 15.0", cfg.GetFineTuneThresholdMm())
	}
	if cfg.GetGridCount() != 16 {
		t.Errorf("GetGridCount() = %d, want 16", cfg.GetGridCount())
	}
	if cfg.GetPolicy() != plan.PolicySkin {
		t.Errorf("GetPolicy() = %v, want skin", cfg.GetPolicy())
	}
}

func TestShippedPlanningDefaultsMatchCode(t *testing.T) {
	shipped := MustLoadDefaultPlanningConfig()
	code := DefaultPlanningConfig()
	if shipped.PlannerOptions() != code.PlannerOptions() {
		t.Errorf("planner options differ: file %+v, code %+v", shipped.PlannerOptions(), code.PlannerOptions())
	}
	if shipped.RobotSteps() != code.RobotSteps() {
		t.Errorf("robot steps differ: file %+v, code %+v", shipped.RobotSteps(), code.RobotSteps())
	}
	if shipped.GetGridSpacingMm() != code.GetGridSpacingMm() || shipped.GetGridCount() != code.GetGridCount() {
		t.Errorf("grid defaults differ")
	}
}

func TestLoadPlanningConfig_Partial(t *testing.T) {
	path := writeConfig(t, "planning.json", `{
  // comments are allowed
  "plan_on_brain": true,
  "tool_rotation_option": "skinClosest",
  "grid_count": 9,
}`)
	cfg, err := LoadPlanningConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	opts := cfg.PlannerOptions()
	if !opts.PlanOnBrain || opts.Policy != plan.PolicySkinClosest {
		t.Errorf("PlannerOptions() = %+v", opts)
	}
	if cfg.GetGridCount() != 9 {
		t.Errorf("GetGridCount() = %d, want 9", cfg.GetGridCount())
	}
	if cfg.GetRandomPosRangeMm() != plan.DefaultRandomPosRangeMm {
		t.Errorf("omitted field should take default, got %f", cfg.GetRandomPosRangeMm())
	}
	if cfg.GetTranslationStepMm() != 5.0 || cfg.GetRotationStepDeg() != 0.5 {
		t.Errorf("RobotSteps() = %+v", cfg.RobotSteps())
	}
}

func TestLoadPlanningConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"zero threshold", `{"color_change_threshold_mm": 0}`, "color_change_threshold_mm"},
		{"grid count", `{"grid_count": 0}`, "grid_count"},
		{"angle range", `{"random_angle_range_deg": 200}`, "random_angle_range_deg"},
		{"unknown policy", `{"tool_rotation_option": "sideways"}`, "unknown tool rotation option"},
		{"combined policy", `{"tool_rotation_option": "combined"}`, "not implemented"},
		{"bad json", `{"grid_count": }`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPlanningConfig(writeConfig(t, "planning.json", tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadJSON_FileChecks(t *testing.T) {
	if _, err := LoadPlanningConfig(writeConfig(t, "planning.yaml", `{}`)); err == nil || !strings.Contains(err.Error(), ".json extension") {
		t.Errorf("expected extension error, got %v", err)
	}
	if _, err := LoadPlanningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected stat error")
	}
	big := writeConfig(t, "big.json", `{"x": "`+strings.Repeat("a", maxFileSize)+`"}`)
	if _, err := LoadCommandSet(big); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestLoadNetworkConfig(t *testing.T) {
	path, err := findDefault(DefaultNetworkPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadNetworkConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	got := strings.Join(cfg.Modules(), ",")
	if got != "MEDIMG,RobotControl,TARGETVIZ" {
		t.Errorf("Modules() = %s", got)
	}
	ep, err := cfg.Endpoint(SuffixMedImg)
	if err != nil {
		t.Fatal(err)
	}
	if ep.ReceiveAddr.Port != 8059 || ep.SendAddr.Port != 8057 {
		t.Errorf("Endpoint(MEDIMG) = %v", ep)
	}
	if ep.Name != SuffixMedImg {
		t.Errorf("Name = %q", ep.Name)
	}
}

func TestNetworkConfig_Errors(t *testing.T) {
	cfg := NetworkConfig{
		"IP_RECEIVE_X":   "127.0.0.1",
		"IP_SEND_X":      "127.0.0.1",
		"PORT_RECEIVE_X": float64(9000),
	}
	if _, err := cfg.Endpoint("X"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Validate should fail on incomplete module, got %v", err)
	}

	cfg["PORT_SEND_X"] = float64(70000)
	if _, err := cfg.Endpoint("X"); err == nil || !strings.Contains(err.Error(), "port number") {
		t.Errorf("expected port range error, got %v", err)
	}
	cfg["PORT_SEND_X"] = "9001"
	if _, err := cfg.Endpoint("X"); err == nil {
		t.Error("string port should be rejected")
	}
	cfg["PORT_SEND_X"] = float64(9001)
	cfg["IP_SEND_X"] = ""
	if _, err := cfg.Endpoint("X"); err == nil {
		t.Error("empty IP should be rejected")
	}

	path := writeConfig(t, "network.json", `{"IP_RECEIVE_Y": "127.0.0.1"}`)
	if _, err := LoadNetworkConfig(path); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestLoadCommandSet(t *testing.T) {
	path, err := findDefault(DefaultCommandsPath)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := LoadCommandSet(path)
	if err != nil {
		t.Fatalf("Failed to load commands: %v", err)
	}
	for _, g := range []string{GroupMedImg, GroupTargetViz, GroupRobot} {
		if _, err := cs.Group(g); err != nil {
			t.Errorf("Group(%s): %v", g, err)
		}
	}
	robot, _ := cs.Group(GroupRobot)
	if robot["MAN_ADJUST_T"] == "" {
		t.Error("robot group should define MAN_ADJUST_T")
	}
	if _, err := cs.Group("Nope"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestCommandSet_Validate(t *testing.T) {
	cs := CommandSet{GroupRobot: {"MAN_ADJUST_T": "t"}}
	err := cs.Validate()
	if !errors.Is(err, ErrMissingKey) || !strings.Contains(err.Error(), "MAN_ADJUST_R") {
		t.Errorf("expected missing MAN_ADJUST_R, got %v", err)
	}

	cs = CommandSet{GroupRobot: {"MAN_ADJUST_T": "t", "MAN_ADJUST_R": ""}}
	if err := cs.Validate(); err == nil || !strings.Contains(err.Error(), "empty opcode") {
		t.Errorf("expected empty opcode error, got %v", err)
	}

	cs = CommandSet{"Custom": {"PING": "p"}}
	if err := cs.Validate(); err != nil {
		t.Errorf("groups without requirements should validate: %v", err)
	}
	if err := cs.Require("Custom", "PING", "PONG"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestCommandSet_ValidatePoseOpcodeLength(t *testing.T) {
	medImg := func(orientation, translation string) CommandSet {
		return CommandSet{GroupMedImg: {
			"LANDMARK_NUM_OF_ON_IMG":  "n",
			"LANDMARK_CURRENT_ON_IMG": "c",
			"LANDMARK_LAST_RECEIVED":  "l",
			"TARGET_POSE_ORIENTATION": orientation,
			"TARGET_POSE_TRANSLATION": translation,
		}}
	}

	if got := protocol.MaxPoseOpcodeLength(protocol.OrientationFields); got != 74 {
		t.Errorf("orientation opcode limit = %d, want 74", got)
	}
	if got := protocol.MaxPoseOpcodeLength(protocol.TranslationFields); got != 93 {
		t.Errorf("translation opcode limit = %d, want 93", got)
	}

	if err := medImg(strings.Repeat("O", 74), strings.Repeat("T", 93)).Validate(); err != nil {
		t.Errorf("opcodes at the limit should validate: %v", err)
	}

	err := medImg(strings.Repeat("O", 75), "t").Validate()
	if !errors.Is(err, protocol.ErrMessageTooLong) || !strings.Contains(err.Error(), "TARGET_POSE_ORIENTATION") {
		t.Errorf("expected orientation opcode rejected, got %v", err)
	}
	err = medImg("o", strings.Repeat("T", 94)).Validate()
	if !errors.Is(err, protocol.ErrMessageTooLong) || !strings.Contains(err.Error(), "TARGET_POSE_TRANSLATION") {
		t.Errorf("expected translation opcode rejected, got %v", err)
	}

	// Other groups may use any length for names that collide.
	cs := CommandSet{"Custom": {"TARGET_POSE_ORIENTATION": strings.Repeat("O", 120)}}
	if err := cs.Validate(); err != nil {
		t.Errorf("pose limits apply to the image group only: %v", err)
	}
}
