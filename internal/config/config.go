// Package config loads the JSON configuration files for the vision-fusion
// and spotlight-controller services. Both tolerate a missing file (zero
// values plus documented defaults) and ignore unknown JSON fields — the
// same contract as original_source/home_vision's load_config functions.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/homevision/homevision/internal/geometry"
)

// Env resolves process-level overrides that don't belong in the
// versioned JSON config: where to find it, and whether to force mock
// hardware regardless of what's physically attached. Mirrors
// api/pkg/config/config.go's envconfig.Process pattern.
type Env struct {
	FusionConfigPath     string `envconfig:"HOMEVISION_FUSION_CONFIG" default:"/etc/home-vision/config.json"`
	SpotlightConfigPath  string `envconfig:"HOMEVISION_SPOTLIGHT_CONFIG" default:"/etc/pir-node/spotlight.json"`
	LogLevel             string `envconfig:"HOMEVISION_LOG_LEVEL" default:"info"`
	ForceMockHardware    bool   `envconfig:"HOMEVISION_MOCK_HARDWARE" default:"false"`
}

// LoadEnv processes environment variables into an Env, applying defaults
// for anything unset.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("config: processing environment: %w", err)
	}
	return e, nil
}

// point is the JSON wire shape of a geometry.Point: a 2-element array,
// matching the original's tuple-of-floats convention.
type point [2]float64

func (p point) toGeometry() geometry.Point {
	return geometry.Point{X: p[0], Y: p[1]}
}

type line [2]point

func (l line) toGeometry() (geometry.Line, error) {
	return geometry.NewLine(l[0].toGeometry(), l[1].toGeometry())
}

// GeometryConfig is the raw JSON shape of the geometry block.
type GeometryConfig struct {
	BedDoor           line   `json:"bed_door"`
	BathDoor          line   `json:"bath_door"`
	LivingRoomPolygon []point `json:"living_room_polygon"`
}

func defaultGeometryConfig() GeometryConfig {
	return GeometryConfig{
		BedDoor:  line{point{0.15, 0.30}, point{0.35, 0.30}},
		BathDoor: line{point{0.65, 0.40}, point{0.85, 0.40}},
		LivingRoomPolygon: []point{
			{0.2, 0.35}, {0.8, 0.35}, {0.85, 0.9}, {0.15, 0.9},
		},
	}
}

// Geometry is the validated, Go-native form of GeometryConfig.
type Geometry struct {
	BedDoor          geometry.Line
	BathDoor         geometry.Line
	LivingRoomPolygon geometry.Polygon
}

func (g GeometryConfig) resolve() (Geometry, error) {
	bed, err := g.BedDoor.toGeometry()
	if err != nil {
		return Geometry{}, fmt.Errorf("config: bed_door: %w", err)
	}
	bath, err := g.BathDoor.toGeometry()
	if err != nil {
		return Geometry{}, fmt.Errorf("config: bath_door: %w", err)
	}
	verts := make([]geometry.Point, len(g.LivingRoomPolygon))
	for i, p := range g.LivingRoomPolygon {
		verts[i] = p.toGeometry()
	}
	poly, err := geometry.NewPolygon(verts)
	if err != nil {
		return Geometry{}, fmt.Errorf("config: living_room_polygon: %w", err)
	}
	return Geometry{BedDoor: bed, BathDoor: bath, LivingRoomPolygon: poly}, nil
}

// FusionConfig is the vision-fusion service's JSON configuration.
type FusionConfig struct {
	MqttHost               string         `json:"mqtt_host"`
	MqttPort               int            `json:"mqtt_port"`
	MqttClientID           string         `json:"mqtt_client_id"`
	MinContourArea         float64        `json:"min_contour_area"`
	FrameResizeWidth       int            `json:"frame_resize_width"`
	DetectionCooldown      float64        `json:"detection_cooldown"`
	PresenceHoldSeconds    float64        `json:"presence_hold_seconds"`
	PresenceConfirmSeconds float64        `json:"presence_confirm_seconds"`
	PirBoostWindow         float64        `json:"pir_boost_window"`
	PirCrossWindow         float64        `json:"pir_cross_window"`
	LogJSONLPath           string         `json:"log_jsonl_path"`
	Geometry               GeometryConfig `json:"geometry"`
}

func defaultFusionConfig() FusionConfig {
	return FusionConfig{
		MqttHost:               "127.0.0.1",
		MqttPort:               1883,
		MqttClientID:           "vision_fusion",
		MinContourArea:         1200,
		FrameResizeWidth:       640,
		DetectionCooldown:      1.0,
		PresenceHoldSeconds:    3.0,
		PresenceConfirmSeconds: 0.5,
		PirBoostWindow:         2.0,
		PirCrossWindow:         1.0,
		LogJSONLPath:           "/var/log/home/vision_events.jsonl",
		Geometry:               defaultGeometryConfig(),
	}
}

// ResolvedFusionConfig is FusionConfig with its geometry block parsed and
// validated.
type ResolvedFusionConfig struct {
	FusionConfig
	Geo Geometry
}

// LoadFusionConfig reads the JSON file at path, falling back to defaults
// for a missing file and for any field the file omits. Unknown fields in
// the file are ignored.
func LoadFusionConfig(path string) (ResolvedFusionConfig, error) {
	cfg := defaultFusionConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Decode over the defaults so omitted fields keep their default
		// value instead of being zeroed.
		if jsonErr := json.Unmarshal(raw, &cfg); jsonErr != nil {
			return ResolvedFusionConfig{}, fmt.Errorf("config: parsing %s: %w", path, jsonErr)
		}
	case os.IsNotExist(err):
		// Defaults only, matching load_config's "not path.exists()" branch.
	default:
		return ResolvedFusionConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	geo, err := cfg.Geometry.resolve()
	if err != nil {
		return ResolvedFusionConfig{}, err
	}
	return ResolvedFusionConfig{FusionConfig: cfg, Geo: geo}, nil
}

// SpotlightConfig is the spotlight-controller's JSON configuration.
type SpotlightConfig struct {
	ModuleID            string   `json:"module_id"`
	MqttHost             string   `json:"mqtt_host"`
	MqttPort             int      `json:"mqtt_port"`
	ClientID             string   `json:"client_id"`
	TriggerOnTopics      []string `json:"trigger_on_topics"`
	TriggerOffTopics     []string `json:"trigger_off_topics"`
	LightHoldSeconds     float64  `json:"light_hold_seconds"`
	Brightness           float64  `json:"brightness"`
	RestBrightness       float64  `json:"rest_brightness"`
	LedPWMPin            int      `json:"led_pwm_pin"`
	LedFrequency         int      `json:"led_frequency"`
	ServoPanPin          int      `json:"servo_pan_pin"`
	ServoTiltPin         int      `json:"servo_tilt_pin"`
	ServoPanAngle        float64  `json:"servo_pan_angle"`
	ServoTiltAngle       float64  `json:"servo_tilt_angle"`
	ServoRestPan         float64  `json:"servo_rest_pan"`
	ServoRestTilt        float64  `json:"servo_rest_tilt"`
	ServoMinAngle        float64  `json:"servo_min_angle"`
	ServoMaxAngle        float64  `json:"servo_max_angle"`
	ServoMinPulseWidth   float64  `json:"servo_min_pulse_width"`
	ServoMaxPulseWidth   float64  `json:"servo_max_pulse_width"`
	AutoRest             bool     `json:"auto_rest"`
}

func defaultSpotlightConfig() SpotlightConfig {
	return SpotlightConfig{
		ModuleID:           "doorway_bedroom",
		MqttHost:           "127.0.0.1",
		MqttPort:           1883,
		LightHoldSeconds:   8.0,
		Brightness:         0.85,
		RestBrightness:     0.0,
		LedPWMPin:          18,
		LedFrequency:       500,
		ServoPanPin:        12,
		ServoTiltPin:       13,
		ServoPanAngle:      -20.0,
		ServoTiltAngle:     -5.0,
		ServoRestPan:       0.0,
		ServoRestTilt:      0.0,
		ServoMinAngle:      -90.0,
		ServoMaxAngle:      90.0,
		ServoMinPulseWidth: 0.0005,
		ServoMaxPulseWidth: 0.0025,
		AutoRest:           true,
	}
}

// LoadSpotlightConfig reads the JSON file at path the same way
// LoadFusionConfig does, then applies ensureDefaults for the
// topic-list/client-id fallbacks the original's ensure_topics supplies.
func LoadSpotlightConfig(path string) (SpotlightConfig, error) {
	cfg := defaultSpotlightConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &cfg); jsonErr != nil {
			return SpotlightConfig{}, fmt.Errorf("config: parsing %s: %w", path, jsonErr)
		}
	case os.IsNotExist(err):
	default:
		return SpotlightConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg.ensureDefaults()
	return cfg, nil
}

func (c *SpotlightConfig) ensureDefaults() {
	if len(c.TriggerOnTopics) == 0 {
		c.TriggerOnTopics = []string{"events/person/bedroom/out"}
	}
	if len(c.TriggerOffTopics) == 0 {
		c.TriggerOffTopics = []string{"events/person/bathroom/in"}
	}
	if c.ClientID == "" {
		c.ClientID = "spotlight_" + c.ModuleID
	}
}

// ClampAngle clamps an angle to [ServoMinAngle, ServoMaxAngle].
func (c SpotlightConfig) ClampAngle(angle float64) float64 {
	if angle < c.ServoMinAngle {
		return c.ServoMinAngle
	}
	if angle > c.ServoMaxAngle {
		return c.ServoMaxAngle
	}
	return angle
}
