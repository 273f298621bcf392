package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"balance-ng/internal/sim"
	"balance-ng/internal/stabilizer"
)

const (
	gainRows = 6
	gainCols = 12
)

type Config struct {
	Robot      RobotConfig      `yaml:"robot"`
	Stabilizer StabilizerConfig `yaml:"stabilizer"`
	Sim        SimConfig        `yaml:"sim"`
}

type RobotConfig struct {
	TotalMass float64    `yaml:"total_mass"`
	Gravity   float64    `yaml:"gravity"`
	ZmpMin    [3]float64 `yaml:"zmp_min"`
	ZmpMax    [3]float64 `yaml:"zmp_max"`
}

type StabilizerConfig struct {
	MinContactForce float64     `yaml:"min_contact_force"`
	ForceCtrl       ServoConfig `yaml:"force_ctrl"`
	MomentCtrl      ServoConfig `yaml:"moment_ctrl"`
	OrientationCtrl PDConfig    `yaml:"orientation_ctrl"`
	Gain            [][]float64 `yaml:"gain"`
}

type ServoConfig struct {
	Damping float64 `yaml:"damping"`
	Gain    float64 `yaml:"gain"`
	Limit   float64 `yaml:"limit"`
}

type PDConfig struct {
	P float64 `yaml:"p"`
	D float64 `yaml:"d"`
}

type SimConfig struct {
	Period      time.Duration `yaml:"period"`
	ComHeight   float64       `yaml:"com_height"`
	FootSpacing float64       `yaml:"foot_spacing"`
	SensorLag   float64       `yaml:"sensor_lag"`
	Scenario    string        `yaml:"scenario"`
	Record      string        `yaml:"record"`
	DB          string        `yaml:"db"`
	PlotDir     string        `yaml:"plot_dir"`
	Telemetry   string        `yaml:"telemetry"`
	Paced       bool          `yaml:"paced"`
	LogLevel    string        `yaml:"log_level"`

	// Only meaningful with Paced.
	LockMemory   bool `yaml:"lock_memory"`
	FIFOPriority int  `yaml:"fifo_priority"`
}

// PlantConfig returns the simulated robot description.
func (c Config) PlantConfig() sim.PlantConfig {
	return sim.PlantConfig{
		Param:       c.Param(),
		ComHeight:   c.Sim.ComHeight,
		FootSpacing: c.Sim.FootSpacing,
		SensorLag:   c.Sim.SensorLag,
	}
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes a YAML document, fills defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Robot.TotalMass <= 0 {
		return Config{}, fmt.Errorf("robot.total_mass must be > 0")
	}
	if cfg.Robot.Gravity == 0 {
		cfg.Robot.Gravity = 9.80665
	}
	if cfg.Robot.Gravity < 0 {
		return Config{}, fmt.Errorf("robot.gravity must be > 0")
	}
	for i := range cfg.Robot.ZmpMin {
		if cfg.Robot.ZmpMin[i] > cfg.Robot.ZmpMax[i] {
			return Config{}, fmt.Errorf("robot.zmp_min[%d] must be <= robot.zmp_max[%d]", i, i)
		}
	}

	st := &cfg.Stabilizer
	if st.MinContactForce == 0 {
		st.MinContactForce = 1
	}
	if st.MinContactForce < 0 {
		return Config{}, fmt.Errorf("stabilizer.min_contact_force must be > 0")
	}
	if err := validateServo("stabilizer.force_ctrl", st.ForceCtrl); err != nil {
		return Config{}, err
	}
	if err := validateServo("stabilizer.moment_ctrl", st.MomentCtrl); err != nil {
		return Config{}, err
	}
	if len(st.Gain) != 0 {
		if len(st.Gain) != gainRows {
			return Config{}, fmt.Errorf("stabilizer.gain must have %d rows, got %d", gainRows, len(st.Gain))
		}
		for i, row := range st.Gain {
			if len(row) != gainCols {
				return Config{}, fmt.Errorf("stabilizer.gain[%d] must have %d columns, got %d", i, gainCols, len(row))
			}
		}
	}

	// Simulator defaults (safe even if the simulator is unused).
	if cfg.Sim.Period <= 0 {
		cfg.Sim.Period = 5 * time.Millisecond
	}
	if cfg.Sim.ComHeight <= 0 {
		cfg.Sim.ComHeight = 0.8
	}
	if cfg.Sim.FootSpacing <= 0 {
		cfg.Sim.FootSpacing = 0.2
	}
	if cfg.Sim.SensorLag == 0 {
		cfg.Sim.SensorLag = 1
	}
	if cfg.Sim.SensorLag < 0 || cfg.Sim.SensorLag > 1 {
		return Config{}, fmt.Errorf("sim.sensor_lag must be in (0, 1]")
	}
	if cfg.Sim.FIFOPriority < 0 || cfg.Sim.FIFOPriority > 99 {
		return Config{}, fmt.Errorf("sim.fifo_priority must be in [0, 99]")
	}
	if cfg.Sim.LogLevel == "" {
		cfg.Sim.LogLevel = "info"
	}
	if _, err := logrus.ParseLevel(cfg.Sim.LogLevel); err != nil {
		return Config{}, fmt.Errorf("sim.log_level: %w", err)
	}

	return cfg, nil
}

func validateServo(name string, s ServoConfig) error {
	if s.Damping < 0 {
		return fmt.Errorf("%s.damping must be >= 0", name)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%s.limit must be >= 0", name)
	}
	return nil
}

// Param returns the robot parameters in the form the stabilizer consumes.
func (c Config) Param() stabilizer.Param {
	return stabilizer.Param{
		TotalMass: c.Robot.TotalMass,
		Gravity:   c.Robot.Gravity,
		ZmpMin:    vec(c.Robot.ZmpMin),
		ZmpMax:    vec(c.Robot.ZmpMax),
	}
}

// StabilizerConfig converts the stabilizer section. An absent gain becomes
// a zero gain.
func (c Config) StabilizerConfig() stabilizer.Config {
	st := c.Stabilizer

	var gain *mat.Dense
	if len(st.Gain) == gainRows {
		gain = mat.NewDense(gainRows, gainCols, nil)
		for i, row := range st.Gain {
			gain.SetRow(i, row)
		}
	}

	return stabilizer.Config{
		MinContactForce: st.MinContactForce,
		ForceCtrl:       stabilizer.ServoGains(st.ForceCtrl),
		MomentCtrl:      stabilizer.ServoGains(st.MomentCtrl),
		OrientationCtrl: stabilizer.PDGains(st.OrientationCtrl),
		Gain:            gain,
	}
}

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}
