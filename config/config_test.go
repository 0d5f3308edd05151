package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

const sampleConfig = `{
	"update_rate": 50,
	"joints": [
		{"name": "shoulder_pan_joint"},
		{"name": "shoulder_lift_joint", "track_gain": 0.5},
		{"name": "wrist_roll_joint", "continuous": true}
	],
	"controllers": [
		{
			"name": "arm_controller",
			"type": "joint_trajectory",
			"attributes": {
				"joints": ["shoulder_pan_joint", "shoulder_lift_joint", "wrist_roll_joint"],
				"stop_with_action": false
			}
		}
	]
}`

func TestFromReader(t *testing.T) {
	cfg, err := FromReader([]byte(sampleConfig))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.UpdateRate, test.ShouldEqual, 50.0)
	test.That(t, len(cfg.Joints), test.ShouldEqual, 3)
	test.That(t, cfg.Joints[1].TrackGain, test.ShouldEqual, 0.5)
	test.That(t, cfg.Joints[2].Continuous, test.ShouldBeTrue)
	test.That(t, len(cfg.Controllers), test.ShouldEqual, 1)
	test.That(t, cfg.Controllers[0].Type, test.ShouldEqual, "joint_trajectory")
	test.That(t, cfg.Controllers[0].Attributes["stop_with_action"], test.ShouldEqual, false)
}

func TestReadSubstitutesEnv(t *testing.T) {
	t.Setenv("ARM_NAME", "left_arm")
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"joints": [{"name": "j1"}],
		"controllers": [{"name": "${ARM_NAME}", "type": "joint_trajectory"}]
	}`
	test.That(t, os.WriteFile(path, []byte(raw), 0o600), test.ShouldBeNil)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Controllers[0].Name, test.ShouldEqual, "left_arm")
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"unnamed joint", `{"joints": [{"continuous": true}]}`},
		{"duplicate joint", `{"joints": [{"name": "j"}, {"name": "j"}]}`},
		{"bad track gain", `{"joints": [{"name": "j", "track_gain": 2}]}`},
		{"unnamed controller", `{"controllers": [{"type": "joint_trajectory"}]}`},
		{"untyped controller", `{"controllers": [{"name": "c"}]}`},
		{"duplicate controller", `{"controllers": [{"name": "c", "type": "a"}, {"name": "c", "type": "b"}]}`},
		{"negative rate", `{"update_rate": -1}`},
		{"not json", `nope`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader([]byte(tc.raw))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}
