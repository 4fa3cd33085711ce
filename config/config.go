package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const appName = "dmp-test-ci"

var v *viper.Viper

func init() {
	v = newViper()
}

func newViper() *viper.Viper {
	v := viper.New()

	// Suite
	v.SetDefault("suite.file", "")
	v.SetDefault("suite.base_url", "http://localhost:8000/cord19.html")
	v.SetDefault("suite.grep", "")
	v.SetDefault("suite.workers", 1)
	v.SetDefault("suite.timeout", 30*time.Second)
	v.SetDefault("suite.timeout_extension", 180*time.Second)
	v.SetDefault("suite.expect_timeout", 5*time.Second)

	// Browser
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.channel", "")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)

	// Snapshots
	v.SetDefault("snapshot.dir", filepath.Join("testdata", "cord_canvas-snapshots"))
	v.SetDefault("snapshot.update", "none")
	v.SetDefault("snapshot.threshold", 0.2)
	v.SetDefault("snapshot.max_diff_pixels", 0)
	v.SetDefault("snapshot.max_diff_pixel_ratio", 0.0)

	// Results
	v.SetDefault("results.dir", "test-results")

	// Serve mode
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_root", ".")
	v.SetDefault("server.schedule", "")

	v.SetDefault("log.level", "info")

	// Environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("suite.base_url", "BASE_URL")
	v.BindEnv("suite.workers", "WORKERS")
	v.BindEnv("browser.headless", "HEADLESS")
	v.BindEnv("snapshot.dir", "BASELINE_DIR")
	v.BindEnv("snapshot.update", "UPDATE_SNAPSHOTS")
	v.BindEnv("results.dir", "RESULTS_DIR")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.static_root", "STATIC_ROOT")
	v.BindEnv("server.schedule", "SCHEDULE")
	v.BindEnv("log.level", "LOG_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		filepath.Join(xdg.ConfigHome, appName),
		"/etc/" + appName,
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	return v
}

// Init reads the config file. An explicit file must exist; otherwise a missing
// config file is ignored and defaults apply.
func Init(file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Reset discards all loaded configuration and flag bindings. Used by tests.
func Reset() {
	v = newViper()
}

// BindFlag lets a command-line flag override the config key when set
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %s is nil", key)
	}
	return v.BindPFlag(key, flag)
}

// ConfigFileUsed returns the path of the loaded config file, if any
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

// Viewport is the browser viewport size in CSS pixels
type Viewport struct {
	Width  int
	Height int
}

// Settings is the resolved configuration
type Settings struct {
	SuiteFile        string
	BaseURL          string
	Grep             string
	Workers          int
	Timeout          time.Duration
	TimeoutExtension time.Duration
	ExpectTimeout    time.Duration

	Headless bool
	Channel  string
	Viewport Viewport

	SnapshotDir       string
	UpdateSnapshots   string
	Threshold         float64
	MaxDiffPixels     int
	MaxDiffPixelRatio float64

	ResultsDir string

	Port       int
	StaticRoot string
	Schedule   string

	LogLevel string
}

// Get returns the resolved settings
func Get() Settings {
	return Settings{
		SuiteFile:        v.GetString("suite.file"),
		BaseURL:          v.GetString("suite.base_url"),
		Grep:             v.GetString("suite.grep"),
		Workers:          v.GetInt("suite.workers"),
		Timeout:          v.GetDuration("suite.timeout"),
		TimeoutExtension: v.GetDuration("suite.timeout_extension"),
		ExpectTimeout:    v.GetDuration("suite.expect_timeout"),

		Headless: v.GetBool("browser.headless"),
		Channel:  v.GetString("browser.channel"),
		Viewport: Viewport{
			Width:  v.GetInt("browser.viewport.width"),
			Height: v.GetInt("browser.viewport.height"),
		},

		SnapshotDir:       v.GetString("snapshot.dir"),
		UpdateSnapshots:   v.GetString("snapshot.update"),
		Threshold:         v.GetFloat64("snapshot.threshold"),
		MaxDiffPixels:     v.GetInt("snapshot.max_diff_pixels"),
		MaxDiffPixelRatio: v.GetFloat64("snapshot.max_diff_pixel_ratio"),

		ResultsDir: v.GetString("results.dir"),

		Port:       v.GetInt("server.port"),
		StaticRoot: v.GetString("server.static_root"),
		Schedule:   v.GetString("server.schedule"),

		LogLevel: v.GetString("log.level"),
	}
}
