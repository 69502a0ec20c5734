package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filebuttons/pkg/errors"
)

func TestLoadString(t *testing.T) {
	data := `
# buttons on the front panel
[filebuttons]
left_pin: ~gpiochip0:16
center_pin = ~gpiochip0:20 ; inline comment
right_pin: ~gpiochip0:21

[printer]
kinematics: none
`
	cfg, err := LoadString(data)
	require.NoError(t, err)

	assert.True(t, cfg.HasSection("filebuttons"))
	assert.True(t, cfg.HasSection("printer"))
	assert.False(t, cfg.HasSection("nonexistent"))
	assert.Equal(t, []string{"filebuttons", "printer"}, cfg.GetSectionNames())

	sec, err := cfg.GetSection("filebuttons")
	require.NoError(t, err)
	v, err := sec.Get("center_pin")
	require.NoError(t, err)
	assert.Equal(t, "~gpiochip0:20", v)

	_, err = sec.Get("missing")
	assert.Error(t, err)
	v, err = sec.Get("missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	_, err = cfg.GetSection("nonexistent")
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
	assert.Nil(t, cfg.GetSectionOptional("nonexistent"))
}

func TestLoadStringErrors(t *testing.T) {
	_, err := LoadString("[filebuttons]\nthis line has no separator\n")
	assert.Error(t, err)

	_, err = LoadString("[]\n")
	assert.Error(t, err)

	_, err = LoadString("[include other.cfg]\n")
	assert.Error(t, err)
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "printer.cfg")
	require.NoError(t, os.WriteFile(main, []byte("[include buttons/*.cfg]\n[filebuttons]\nreconnect: False\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "buttons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buttons", "pins.cfg"),
		[]byte("[filebuttons]\nleft_pin: 5\n"), 0o644))

	cfg, err := Load(main)
	require.NoError(t, err)
	sec, err := cfg.GetSection("filebuttons")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"left_pin": "5", "reconnect": "False"}, sec.RawOptions())
}

func TestLoadRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "printer.cfg")
	require.NoError(t, os.WriteFile(main, []byte("[include printer.cfg]\n"), 0o644))

	_, err := Load(main)
	assert.ErrorContains(t, err, "recursive include")
}

func TestParsePin(t *testing.T) {
	tests := []struct {
		desc    string
		want    Pin
		wantErr bool
	}{
		{desc: "16", want: Pin{Name: "16"}},
		{desc: "~gpiochip0:16", want: Pin{Name: "16", Chip: "gpiochip0", Pull: PullDown}},
		{desc: "^!GPIO20", want: Pin{Name: "GPIO20", Invert: true, Pull: PullUp}},
		{desc: "^ ! gpiochip1 : 3", want: Pin{Name: "3", Chip: "gpiochip1", Invert: true, Pull: PullUp}},
		{desc: "", wantErr: true},
		{desc: "~", wantErr: true},
		{desc: "gpiochip0:", wantErr: true},
		{desc: "a:b:c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ParsePin(tt.desc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPinStringRoundTrip(t *testing.T) {
	for _, desc := range []string{"16", "~gpiochip0:16", "^!GPIO20", "!gpiochip2:7"} {
		p, err := ParsePin(desc)
		require.NoError(t, err)
		assert.Equal(t, desc, p.String())
	}
}

func TestPinOffset(t *testing.T) {
	p := Pin{Name: "GPIO21"}
	off, err := p.Offset()
	require.NoError(t, err)
	assert.Equal(t, 21, off)

	_, err = Pin{Name: "PA5"}.Offset()
	assert.Error(t, err)
}

func TestDecodeSettingsDefaults(t *testing.T) {
	s, err := DecodeSettings(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *s)
}

func TestLoadSettingsCfg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.cfg")
	require.NoError(t, os.WriteFile(path, []byte(`
[filebuttons]
left_pin: ^!gpiochip0:5
bounce_time: 0.05
short_window: 150ms
long_window: 2
extensions: gcode, .G
reconnect: False
lister: local
local_root: /home/pi/gcodes
`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, Pin{Name: "5", Chip: "gpiochip0", Invert: true, Pull: PullUp}, s.LeftPin)
	assert.Equal(t, Defaults().CenterPin, s.CenterPin)
	assert.Equal(t, 50*time.Millisecond, s.BounceTime)
	assert.Equal(t, 150*time.Millisecond, s.ShortWindow)
	assert.Equal(t, 2*time.Second, s.LongWindow)
	assert.Equal(t, []string{".gcode", ".g"}, s.Extensions)
	assert.False(t, s.Reconnect)
	assert.Equal(t, "local", s.Lister)
	assert.Equal(t, "/home/pi/gcodes", s.LocalRoot)
}

func TestLoadSettingsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buttons.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
filebuttons:
  left_pin: 17
  right_pin: "~gpiochip0:27"
  short_window: 0.2
  show_event_number: false
  extensions: [.gcode]
  gpio_driver: sim
`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, Pin{Name: "17"}, s.LeftPin)
	assert.Equal(t, Pin{Name: "27", Chip: "gpiochip0", Pull: PullDown}, s.RightPin)
	assert.Equal(t, 200*time.Millisecond, s.ShortWindow)
	assert.False(t, s.ShowEventNumber)
	assert.Equal(t, []string{".gcode"}, s.Extensions)
	assert.Equal(t, "sim", s.GPIODriver)
}

func TestLoadSettingsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buttons.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[filebuttons]
center_pin = "GPIO12"
long_window = "1500ms"
call_timeout = 3
printer = "memory"
metrics_addr = ":9108"
`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, Pin{Name: "GPIO12"}, s.CenterPin)
	assert.Equal(t, 1500*time.Millisecond, s.LongWindow)
	assert.Equal(t, 3*time.Second, s.CallTimeout)
	assert.Equal(t, "memory", s.Printer)
	assert.Equal(t, ":9108", s.MetricsAddr)
}

func TestLoadSettingsMissingSection(t *testing.T) {
	_, err := ParseOptions([]byte("other:\n  a: 1\n"), "yaml")
	assert.True(t, errors.Is(err, errors.ErrConfigSection))

	_, err = ParseOptions([]byte("[printer]\nkinematics: none\n"), "cfg")
	assert.True(t, errors.Is(err, errors.ErrConfigSection))
}

func TestDecodeSettingsValidation(t *testing.T) {
	tests := []struct {
		name string
		opts map[string]interface{}
	}{
		{"bad driver", map[string]interface{}{"gpio_driver": "wiringpi"}},
		{"bad printer", map[string]interface{}{"printer": "octoprint"}},
		{"bad origin", map[string]interface{}{"origin": "usb"}},
		{"zero short window", map[string]interface{}{"short_window": "0"}},
		{"long shorter than short", map[string]interface{}{"short_window": "1", "long_window": "0.5"}},
		{"negative bounce", map[string]interface{}{"bounce_time": "-1"}},
		{"local lister without root", map[string]interface{}{"lister": "local"}},
		{"sdcard without root", map[string]interface{}{"lister": "local", "local_root": "/g", "origin": "sdcard"}},
		{"empty moonraker url", map[string]interface{}{"moonraker_url": ""}},
		{"bad pin", map[string]interface{}{"left_pin": "a:b:c"}},
		{"bad duration", map[string]interface{}{"bounce_time": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSettings(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestDecodeSettingsIgnoresUnknownOptions(t *testing.T) {
	s, err := DecodeSettings(map[string]interface{}{"colour": "blue", "reconnect": "true"})
	require.NoError(t, err)
	assert.True(t, s.Reconnect)
}
