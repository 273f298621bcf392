package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// ScenarioScript is a deterministic, script-driven disturbance description.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 4s
//	keyframes:
//	  - t: 0s
//	    push: [0, 0]      # horizontal force on the CoM, N (world x, y)
//	    tilt: [0, 0]      # torso roll/pitch sensor offset, rad
//	    support: both     # both | right | left | none
//
// Keyframes must use non-decreasing t values. Push and tilt are linearly
// interpolated; support is held from the keyframe at or before t.
//
// Keep this struct stable: scripts are test fixtures.
type ScenarioScript struct {
	Version   int             `yaml:"version"`
	Duration  time.Duration   `yaml:"duration"`
	Keyframes []ScenarioFrame `yaml:"keyframes"`
}

// ScenarioFrame is a time-stamped disturbance state.
type ScenarioFrame struct {
	T       time.Duration `yaml:"t"`
	Push    [2]float64    `yaml:"push"`
	Tilt    [2]float64    `yaml:"tilt"`
	Support Support       `yaml:"support"`
}

// Support is the planned contact mode.
type Support string

const (
	SupportBoth  Support = "both"
	SupportRight Support = "right"
	SupportLeft  Support = "left"
	SupportNone  Support = "none"
)

func (s Support) valid() bool {
	switch s {
	case SupportBoth, SupportRight, SupportLeft, SupportNone:
		return true
	}
	return false
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script ScenarioScript
	// Derived duration (script.Duration or max keyframe time).
	duration time.Duration
}

// ScenarioState is the computed scenario state at a time.
type ScenarioState struct {
	Push    r3.Vec
	Tilt    r3.Vec
	Support Support
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

// ParseScenarioScriptYAML parses a YAML scenario script.
func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i := range script.Keyframes {
		kf := &script.Keyframes[i]
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if kf.Support == "" {
			kf.Support = SupportBoth
		}
		if !kf.Support.valid() {
			return nil, fmt.Errorf("keyframes[%d].support %q is not one of both, right, left, none", i, kf.Support)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}

	return &Scenario{script: script, duration: dur}, nil
}

// Standing returns a scenario of quiet double support.
func Standing(d time.Duration) *Scenario {
	return &Scenario{
		script: ScenarioScript{
			Version:   1,
			Duration:  d,
			Keyframes: []ScenarioFrame{{Support: SupportBoth}},
		},
		duration: d,
	}
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// StateAt computes the scenario state at elapsed, clamped to
// [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration) ScenarioState {
	if s == nil {
		return ScenarioState{Support: SupportBoth}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.duration {
		elapsed = s.duration
	}

	kf0, kf1, alpha := selectSegment(s.script.Keyframes, elapsed)
	return ScenarioState{
		Push: r3.Vec{
			X: lerp(kf0.Push[0], kf1.Push[0], alpha),
			Y: lerp(kf0.Push[1], kf1.Push[1], alpha),
		},
		Tilt: r3.Vec{
			X: lerp(kf0.Tilt[0], kf1.Tilt[0], alpha),
			Y: lerp(kf0.Tilt[1], kf1.Tilt[1], alpha),
		},
		Support: kf0.Support,
	}
}

func selectSegment(kfs []ScenarioFrame, t time.Duration) (ScenarioFrame, ScenarioFrame, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
