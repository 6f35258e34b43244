package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvPathVar = "CHAT_SCRAPER_ENV"

	DefaultIterations      = 150
	DefaultScrollStep      = 800
	DefaultScrollPause     = 500 * time.Millisecond
	DefaultScreenshotDir   = "screenshots"
	DefaultOutputFile      = "extracted_messages.xlsx"
	DefaultLanguage        = "chi_sim"
	DefaultMinBubbleW      = 500
	DefaultMinBubbleH      = 135
	DefaultWhiteLower      = 230
	DefaultWhiteUpper      = 255
	DefaultStopHotkey      = "Ctrl+Alt+Q"
	DefaultMaxHashDistance = 0
)

// DefaultRegion is the chat pane of the target application: left, top, width, height.
var DefaultRegion = Region{X: 1360, Y: 0, Width: 540, Height: 940}

type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// LoadOptions carry command-line overrides. Zero values mean "not set".
type LoadOptions struct {
	Region        string
	Iterations    int
	OutputFile    string
	ScreenshotDir string
	Language      string
}

type Config struct {
	Region            Region
	Iterations        int
	ScrollStep        int
	ScrollPause       time.Duration
	ScreenshotDir     string
	OutputFile        string
	Language          string
	TessdataPrefix    string
	MinBubbleWidth    int
	MinBubbleHeight   int
	WhiteLower        uint8
	WhiteUpper        uint8
	StopHotkey        string
	StaticFrameLimit  int
	MaxHashDistance   int
	OCRWorkers        int
	CopyToClipboard   bool
	EnableFileLogging bool
	SaveMasks         bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Priority, lowest first: built-in defaults, .env, process environment, opts.
	// godotenv.Load never overrides variables already present in the environment.
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	region := DefaultRegion
	if v := os.Getenv("REGION"); v != "" {
		r, err := ParseRegion(v)
		if err != nil {
			return nil, fmt.Errorf("REGION: %w", err)
		}
		region = r
	}
	if v := strings.TrimSpace(opts.Region); v != "" {
		r, err := ParseRegion(v)
		if err != nil {
			return nil, fmt.Errorf("region override: %w", err)
		}
		region = r
	}

	cfg := &Config{
		Region:            region,
		Iterations:        getEnvInt("ITERATIONS", DefaultIterations),
		ScrollStep:        getEnvInt("SCROLL_STEP", DefaultScrollStep),
		ScrollPause:       time.Duration(getEnvInt("SCROLL_PAUSE_MS", int(DefaultScrollPause/time.Millisecond))) * time.Millisecond,
		ScreenshotDir:     getEnvWithDefault("SCREENSHOT_DIR", DefaultScreenshotDir),
		OutputFile:        getEnvWithDefault("OUTPUT_FILE", DefaultOutputFile),
		Language:          getEnvWithDefault("OCR_LANGUAGE", DefaultLanguage),
		TessdataPrefix:    os.Getenv("TESSDATA_PREFIX"),
		MinBubbleWidth:    getEnvInt("MIN_BUBBLE_WIDTH", DefaultMinBubbleW),
		MinBubbleHeight:   getEnvInt("MIN_BUBBLE_HEIGHT", DefaultMinBubbleH),
		WhiteLower:        getEnvUint8("WHITE_LOWER", DefaultWhiteLower),
		WhiteUpper:        getEnvUint8("WHITE_UPPER", DefaultWhiteUpper),
		StopHotkey:        getEnvWithDefault("STOP_HOTKEY", DefaultStopHotkey),
		StaticFrameLimit:  getEnvNonNegative("STATIC_FRAME_LIMIT", 0),
		MaxHashDistance:   getEnvNonNegative("MAX_HASH_DISTANCE", DefaultMaxHashDistance),
		OCRWorkers:        getEnvInt("OCR_WORKERS", 1),
		CopyToClipboard:   getEnvBool("COPY_TO_CLIPBOARD"),
		EnableFileLogging: getEnvBool("ENABLE_FILE_LOGGING"),
		SaveMasks:         getEnvBool("SAVE_MASKS"),
	}

	if opts.Iterations > 0 {
		cfg.Iterations = opts.Iterations
	}
	if v := strings.TrimSpace(opts.OutputFile); v != "" {
		cfg.OutputFile = v
	}
	if v := strings.TrimSpace(opts.ScreenshotDir); v != "" {
		cfg.ScreenshotDir = v
	}
	if v := strings.TrimSpace(opts.Language); v != "" {
		cfg.Language = v
	}

	return cfg, nil
}

// Validate reports settings the scraper cannot run with.
func (c *Config) Validate() error {
	if c.Region.Width <= 0 || c.Region.Height <= 0 {
		return fmt.Errorf("invalid region dimensions: width=%d, height=%d", c.Region.Width, c.Region.Height)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.WhiteLower > c.WhiteUpper {
		return fmt.Errorf("white threshold lower bound %d exceeds upper bound %d", c.WhiteLower, c.WhiteUpper)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file is required")
	}
	return nil
}

// ParseRegion parses "x,y,width,height".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("expected x,y,width,height, got %q", s)
	}
	var vals [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("invalid region component %q: %w", p, err)
		}
		vals[i] = n
	}
	return Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvNonNegative(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvUint8(key string, defaultValue uint8) uint8 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8); err == nil {
			return uint8(n)
		}
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	return strings.ToLower(strings.TrimSpace(os.Getenv(key))) == "true"
}
