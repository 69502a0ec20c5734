package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"filebuttons/pkg/errors"
	"filebuttons/pkg/log"
)

// SectionName is the config section (or YAML/TOML table) holding the
// button controller options.
const SectionName = "filebuttons"

// Settings is the decoded [filebuttons] section.
type Settings struct {
	LeftPin   Pin `mapstructure:"left_pin"`
	CenterPin Pin `mapstructure:"center_pin"`
	RightPin  Pin `mapstructure:"right_pin"`

	GPIODriver string        `mapstructure:"gpio_driver"`
	GPIOChip   string        `mapstructure:"gpio_chip"`
	BounceTime time.Duration `mapstructure:"bounce_time"`

	ShortWindow time.Duration `mapstructure:"short_window"`
	LongWindow  time.Duration `mapstructure:"long_window"`

	Printer         string `mapstructure:"printer"`
	MoonrakerURL    string `mapstructure:"moonraker_url"`
	MoonrakerAPIKey string `mapstructure:"moonraker_api_key"`
	Lister          string `mapstructure:"lister"`
	LocalRoot       string `mapstructure:"local_root"`
	SDCardRoot      string `mapstructure:"sdcard_root"`
	Origin          string `mapstructure:"origin"`

	Extensions      []string      `mapstructure:"extensions"`
	Reconnect       bool          `mapstructure:"reconnect"`
	ShowEventNumber bool          `mapstructure:"show_event_number"`
	SampleLevels    bool          `mapstructure:"sample_levels"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
}

var (
	gpioDrivers = []string{"gpiod", "periph", "sysfs", "sim"}
	printers    = []string{"moonraker", "memory"}
	listers     = []string{"moonraker", "local"}
	origins     = []string{"local", "sdcard"}
)

// Defaults returns the settings used for options that are not given.
func Defaults() Settings {
	return Settings{
		LeftPin:         Pin{Chip: "gpiochip0", Name: "16", Pull: PullDown},
		CenterPin:       Pin{Chip: "gpiochip0", Name: "20", Pull: PullDown},
		RightPin:        Pin{Chip: "gpiochip0", Name: "21", Pull: PullDown},
		GPIODriver:      "gpiod",
		BounceTime:      250 * time.Millisecond,
		ShortWindow:     100 * time.Millisecond,
		LongWindow:      time.Second,
		Printer:         "moonraker",
		MoonrakerURL:    "ws://127.0.0.1:7125/websocket",
		Lister:          "moonraker",
		Origin:          "local",
		Extensions:      []string{".gcode", ".gco", ".g"},
		Reconnect:       true,
		ShowEventNumber: true,
		SampleLevels:    true,
	}
}

// Pins returns the left, center and right pins in channel order.
func (s *Settings) Pins() [3]Pin {
	return [3]Pin{s.LeftPin, s.CenterPin, s.RightPin}
}

// LoadSettings reads the filebuttons options from path. The format is
// chosen from the extension: .cfg/.conf (Klipper style), .yaml/.yml or
// .toml.
func LoadSettings(path string) (*Settings, error) {
	opts, err := LoadOptions(path)
	if err != nil {
		return nil, err
	}
	return DecodeSettings(opts)
}

// LoadOptions reads the raw filebuttons options from path without
// decoding them.
func LoadOptions(path string) (map[string]interface{}, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseOptions(data, "yaml")
	case ".toml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseOptions(data, "toml")
	default:
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		return sectionOptions(cfg)
	}
}

// SourceFiles returns the absolute paths the options at path are read
// from: path itself and, for .cfg files, every included file.
func SourceFiles(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		return []string{abs}, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return []string{abs}, err
	}
	return cfg.Files(), nil
}

// ParseOptions parses data in the given format ("cfg", "yaml" or "toml")
// and returns the raw filebuttons options.
func ParseOptions(data []byte, format string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.ConfigTypeError(SectionName, err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, errors.ConfigTypeError(SectionName, err)
		}
	case "cfg", "ini", "":
		cfg, err := LoadString(string(data))
		if err != nil {
			return nil, err
		}
		return sectionOptions(cfg)
	default:
		return nil, errors.New(errors.ErrConfigType, "unknown config format "+format)
	}

	raw, ok := doc[SectionName]
	if !ok {
		return nil, errors.ConfigSectionError(SectionName)
	}
	section, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.ConfigValidationError(SectionName, "", "section must be a table")
	}
	return section, nil
}

func sectionOptions(cfg *Config) (map[string]interface{}, error) {
	sec, err := cfg.GetSection(SectionName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigSection, "missing ["+SectionName+"] section").
			SetSection(SectionName)
	}
	opts := make(map[string]interface{})
	for k, v := range sec.RawOptions() {
		opts[k] = v
	}
	return opts, nil
}

// DecodeSettings applies raw options on top of Defaults and validates
// the result. Unknown options are logged and ignored.
func DecodeSettings(opts map[string]interface{}) (*Settings, error) {
	s := Defaults()
	defaultExt := s.Extensions
	s.Extensions = nil

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationHook,
			pinHook,
			listHook,
		),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &s,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(opts); err != nil {
		return nil, errors.ConfigTypeError(SectionName, err)
	}
	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		log.GetLogger("config").WithField("options", md.Unused).
			Warn("ignoring unknown options in [" + SectionName + "]")
	}
	if s.Extensions == nil {
		s.Extensions = defaultExt
	}
	for i, ext := range s.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.Extensions[i] = ext
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks option ranges and choices.
func (s *Settings) Validate() error {
	choice := func(option, value string, valid []string) error {
		for _, v := range valid {
			if v == value {
				return nil
			}
		}
		return ErrInvalidChoice(SectionName, option, value, valid)
	}
	if err := choice("gpio_driver", s.GPIODriver, gpioDrivers); err != nil {
		return err
	}
	if err := choice("printer", s.Printer, printers); err != nil {
		return err
	}
	if err := choice("lister", s.Lister, listers); err != nil {
		return err
	}
	if err := choice("origin", s.Origin, origins); err != nil {
		return err
	}
	if s.BounceTime < 0 {
		return errors.ConfigValidationError(SectionName, "bounce_time", "must not be negative")
	}
	if s.ShortWindow <= 0 {
		return errors.ConfigValidationError(SectionName, "short_window", "must be positive")
	}
	if s.LongWindow < s.ShortWindow {
		return errors.ConfigValidationError(SectionName, "long_window", "must not be shorter than short_window")
	}
	if s.CallTimeout < 0 {
		return errors.ConfigValidationError(SectionName, "call_timeout", "must not be negative")
	}
	if (s.Printer == "moonraker" || s.Lister == "moonraker") && s.MoonrakerURL == "" {
		return ErrMissingOption(SectionName, "moonraker_url")
	}
	if s.Lister == "local" && s.LocalRoot == "" {
		return ErrMissingOption(SectionName, "local_root")
	}
	if s.Lister == "local" && s.Origin == "sdcard" && s.SDCardRoot == "" {
		return ErrMissingOption(SectionName, "sdcard_root")
	}
	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	pinType      = reflect.TypeOf(Pin{})
)

// durationHook accepts Klipper-style float seconds ("0.25", 0.25) as
// well as Go duration strings ("250ms").
func durationHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		v = strings.TrimSpace(v)
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return secondsToDuration(secs), nil
		}
		return time.ParseDuration(v)
	case float64:
		return secondsToDuration(v), nil
	case float32:
		return secondsToDuration(float64(v)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	}
	return data, nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func pinHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t != pinType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return ParsePin(v)
	case int, int64, uint64:
		return ParsePin(fmt.Sprint(v))
	}
	return data, nil
}

// listHook splits comma separated strings into trimmed, non-empty items.
func listHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
		return data, nil
	}
	var out []string
	for _, item := range strings.Split(data.(string), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
