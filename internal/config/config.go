package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/waypoints/internal/geom"
)

// DefaultConfigPath is where the daemon looks for its config when no
// --config flag is given. A missing file means "all defaults".
const DefaultConfigPath = "config/follower.json"

// Config is the follower's parameter set. Every field is optional; the Get*
// accessors supply the defaults, so partial files are safe. Durations are
// strings accepted by time.ParseDuration.
type Config struct {
	// Frames
	GoalFrameID *string `json:"goal_frame_id,omitempty"`
	OdomFrameID *string `json:"odom_frame_id,omitempty"`
	BaseFrameID *string `json:"base_frame_id,omitempty"`

	// Topics
	AddPoseTopic   *string `json:"addpose_topic,omitempty"`
	PoseArrayTopic *string `json:"posearray_topic,omitempty"`

	// Execution
	WaitDuration        *string  `json:"wait_duration,omitempty"` // dwell after each goal
	XYGoalTolerance     *float64 `json:"xy_goal_tolerance,omitempty"`
	YawGoalTolerance    *float64 `json:"yaw_goal_tolerance,omitempty"`
	RestoreXYTolerance  *float64 `json:"restore_xy_goal_tolerance,omitempty"`
	RestoreYawTolerance *float64 `json:"restore_yaw_goal_tolerance,omitempty"`

	// Persistence
	PathFile *string `json:"path_file,omitempty"`

	// Waits
	TransformTimeout   *string `json:"transform_timeout,omitempty"`
	PollInterval       *string `json:"poll_interval,omitempty"`
	ResetCooldown      *string `json:"reset_cooldown,omitempty"`
	ReplayPollInterval *string `json:"replay_poll_interval,omitempty"`

	// Static transforms loaded into the transform tree at startup.
	StaticTransforms []StaticTransform `json:"static_transforms,omitempty"`
}

// StaticTransform is one fixed parent->child edge.
type StaticTransform struct {
	Parent    string         `json:"parent"`
	Child     string         `json:"child"`
	Transform geom.Transform `json:"transform"`
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns an empty (all-defaults)
// config otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}
	return LoadConfig(path)
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	durations := map[string]*string{
		"wait_duration":        c.WaitDuration,
		"transform_timeout":    c.TransformTimeout,
		"poll_interval":        c.PollInterval,
		"reset_cooldown":       c.ResetCooldown,
		"replay_poll_interval": c.ReplayPollInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	tolerances := map[string]*float64{
		"xy_goal_tolerance":          c.XYGoalTolerance,
		"yaw_goal_tolerance":         c.YawGoalTolerance,
		"restore_xy_goal_tolerance":  c.RestoreXYTolerance,
		"restore_yaw_goal_tolerance": c.RestoreYawTolerance,
	}
	for name, v := range tolerances {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.GoalFrameID != nil && *c.GoalFrameID == "" {
		return fmt.Errorf("goal_frame_id must not be empty")
	}
	if c.PathFile != nil && *c.PathFile == "" {
		return fmt.Errorf("path_file must not be empty")
	}

	for i, st := range c.StaticTransforms {
		if st.Parent == "" || st.Child == "" {
			return fmt.Errorf("static_transforms[%d]: parent and child are required", i)
		}
		if st.Parent == st.Child {
			return fmt.Errorf("static_transforms[%d]: parent and child are both %q", i, st.Parent)
		}
		if err := st.Transform.Validate(); err != nil {
			return fmt.Errorf("static_transforms[%d] %s->%s: %w", i, st.Parent, st.Child, err)
		}
	}

	return nil
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetGoalFrameID returns the frame goals are expressed in.
func (c *Config) GetGoalFrameID() string { return stringOr(c.GoalFrameID, "map") }

// GetOdomFrameID returns the odometry frame.
func (c *Config) GetOdomFrameID() string { return stringOr(c.OdomFrameID, "odom") }

// GetBaseFrameID returns the robot base frame.
func (c *Config) GetBaseFrameID() string { return stringOr(c.BaseFrameID, "base_footprint") }

// GetAddPoseTopic returns the topic new waypoints arrive on.
func (c *Config) GetAddPoseTopic() string { return stringOr(c.AddPoseTopic, "/initialpose") }

// GetPoseArrayTopic returns the visualization topic.
func (c *Config) GetPoseArrayTopic() string { return stringOr(c.PoseArrayTopic, "/waypoints") }

// GetWaitDuration returns the dwell after each goal.
func (c *Config) GetWaitDuration() time.Duration { return durationOr(c.WaitDuration, 0) }

// GetXYGoalTolerance returns the xy tolerance applied while following a path.
func (c *Config) GetXYGoalTolerance() float64 { return floatOr(c.XYGoalTolerance, 0.3) }

// GetYawGoalTolerance returns the yaw tolerance applied while following a path.
func (c *Config) GetYawGoalTolerance() float64 { return floatOr(c.YawGoalTolerance, 3.14) }

// GetRestoreXYTolerance returns the fallback xy tolerance restored after a
// path when the navigation service cannot report its own.
func (c *Config) GetRestoreXYTolerance() float64 { return floatOr(c.RestoreXYTolerance, 0.1) }

// GetRestoreYawTolerance is the yaw counterpart of GetRestoreXYTolerance.
func (c *Config) GetRestoreYawTolerance() float64 { return floatOr(c.RestoreYawTolerance, 0.05) }

// GetPathFile returns the single persisted-path location used by both the
// ready and replay branches.
func (c *Config) GetPathFile() string { return stringOr(c.PathFile, "saved_path/pose.csv") }

// GetTransformTimeout bounds each transform lookup.
func (c *Config) GetTransformTimeout() time.Duration {
	return durationOr(c.TransformTimeout, 3*time.Second)
}

// GetPollInterval bounds each wait for a new waypoint.
func (c *Config) GetPollInterval() time.Duration { return durationOr(c.PollInterval, time.Second) }

// GetResetCooldown is the debounce after a reset signal.
func (c *Config) GetResetCooldown() time.Duration {
	return durationOr(c.ResetCooldown, 3*time.Second)
}

// GetReplayPollInterval is the arrival polling period during replay.
func (c *Config) GetReplayPollInterval() time.Duration {
	return durationOr(c.ReplayPollInterval, 100*time.Millisecond)
}
