// Package config loads and watches kiln's configuration: the json5 config
// file for appearance and behavior, and the yaml key-binding file. A reload
// bumps the generation counter that invalidates render caches and triggers
// palette re-broadcast to connected clients.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ellery/kiln/internal/color"
	"github.com/fsnotify/fsnotify"
	"github.com/micro-editor/json5"
	"github.com/mitchellh/go-homedir"
)

// Config is the json5-backed configuration. Invalid values are replaced
// with defaults and reported through the alert callback rather than
// failing the load.
type Config struct {
	ScrollbackLines int `json:"scrollback_lines"`

	FontSize    float64 `json:"font_size"`
	PaddingPx   int     `json:"padding"`
	Foreground  string  `json:"foreground"`
	Background  string  `json:"background"`
	CursorColor string  `json:"cursor_color"`
	// AnsiColors overrides the first 16 palette entries.
	AnsiColors []string `json:"ansi_colors"`

	BoldBrightensAnsiColors bool `json:"bold_brightens_ansi_colors"`

	DefaultCursorStyle string `json:"default_cursor_style"`
	CursorBlinkRateMs  int    `json:"cursor_blink_rate"`

	VisualBellTarget    string `json:"visual_bell_target"`
	VisualBellFadeInMs  int    `json:"visual_bell_fade_in"`
	VisualBellFadeOutMs int    `json:"visual_bell_fade_out"`

	QuickSelectAlphabet string   `json:"quick_select_alphabet"`
	QuickSelectPatterns []string `json:"quick_select_patterns"`

	DefaultProg      string `json:"default_prog"`
	DefaultWorkspace string `json:"default_workspace"`

	// Mux server settings
	UnixSocket string `json:"unix_socket"`
	TLSListen  string `json:"tls_listen"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		ScrollbackLines:         3500,
		FontSize:                12,
		PaddingPx:               2,
		BoldBrightensAnsiColors: true,
		CursorBlinkRateMs:       800,
		VisualBellTarget:        "background",
		VisualBellFadeInMs:      75,
		VisualBellFadeOutMs:     150,
		QuickSelectAlphabet:     "asdfqwerzxcvjklmiuopghtybn",
		DefaultWorkspace:        "default",
	}
}

// Dir resolves the configuration directory.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".kiln"), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kiln.json"), nil
}

// KeyBindingsPath returns the key-binding file location.
func KeyBindingsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keys.yaml"), nil
}

// Load reads the config file, merging over defaults. A missing file is the
// defaults; a malformed file reports through onProblem and keeps defaults.
func Load(path string, onProblem func(string)) *Config {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && onProblem != nil {
			onProblem(fmt.Sprintf("config: %v", err))
		}
		return cfg
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		if onProblem != nil {
			onProblem(fmt.Sprintf("config: parse %s: %v", path, err))
		}
		return Defaults()
	}
	cfg.validate(onProblem)
	return cfg
}

// validate substitutes defaults for invalid values and reports them.
func (c *Config) validate(onProblem func(string)) {
	report := func(msg string) {
		if onProblem != nil {
			onProblem(msg)
		}
	}
	if c.ScrollbackLines < 0 {
		report(fmt.Sprintf("config: scrollback_lines %d invalid, using default", c.ScrollbackLines))
		c.ScrollbackLines = Defaults().ScrollbackLines
	}
	for _, spec := range []struct {
		name  string
		value *string
	}{
		{"foreground", &c.Foreground},
		{"background", &c.Background},
		{"cursor_color", &c.CursorColor},
	} {
		if *spec.value == "" {
			continue
		}
		if _, err := color.Parse(*spec.value); err != nil {
			report(fmt.Sprintf("config: %s %q: %v", spec.name, *spec.value, err))
			*spec.value = ""
		}
	}
	for i, spec := range c.AnsiColors {
		if _, err := color.Parse(spec); err != nil {
			report(fmt.Sprintf("config: ansi_colors[%d] %q: %v", i, spec, err))
			c.AnsiColors = nil
			break
		}
	}
}

// Palette builds the runtime palette from the config colors.
func (c *Config) Palette() *color.Palette {
	p := color.DefaultPalette()
	if c.Foreground != "" {
		if v, err := color.Parse(c.Foreground); err == nil {
			p.Foreground = v
		}
	}
	if c.Background != "" {
		if v, err := color.Parse(c.Background); err == nil {
			p.Background = v
		}
	}
	if c.CursorColor != "" {
		if v, err := color.Parse(c.CursorColor); err == nil {
			p.Cursor = v
		}
	}
	for i, spec := range c.AnsiColors {
		if i > 15 {
			break
		}
		if v, err := color.Parse(spec); err == nil {
			p.Colors[i] = v
		}
	}
	return p
}

// CursorBlinkRate converts the configured rate.
func (c *Config) CursorBlinkRate() time.Duration {
	return time.Duration(c.CursorBlinkRateMs) * time.Millisecond
}

// Watcher observes the config file and bumps a generation counter on every
// change.
type Watcher struct {
	mu         sync.Mutex
	generation atomic.Uint64
	cfg        *Config
	onReload   []func(*Config)

	fsw  *fsnotify.Watcher
	path string
	stop chan struct{}
}

// NewWatcher loads the config and begins watching its file.
func NewWatcher(path string, onProblem func(string)) (*Watcher, error) {
	w := &Watcher{
		cfg:  Load(path, onProblem),
		path: path,
		stop: make(chan struct{}),
	}
	w.generation.Store(1)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	w.fsw = fsw
	// Watch the directory: editors replace files rather than rewrite them
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		log.Printf("config: watch %s: %v", filepath.Dir(path), err)
	}
	go w.run(onProblem)
	return w, nil
}

// Generation returns the current config generation. Render caches key on
// it; any reload invalidates them.
func (w *Watcher) Generation() uint64 { return w.generation.Load() }

// Current returns the latest loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// OnReload registers a callback invoked after each successful reload (the
// server uses it to re-emit SetPalette to every client).
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Reload forces a reload, as the ReloadConfiguration assignment does.
func (w *Watcher) Reload(onProblem func(string)) {
	cfg := Load(w.path, onProblem)
	w.mu.Lock()
	w.cfg = cfg
	callbacks := make([]func(*Config), len(w.onReload))
	copy(callbacks, w.onReload)
	w.mu.Unlock()

	w.generation.Add(1)
	log.Printf("config: reloaded %s (generation %d)", w.path, w.Generation())
	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (w *Watcher) run(onProblem func(string)) {
	// Debounce: editors emit bursts of events per save
	var pending *time.Timer
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(100*time.Millisecond, func() {
				w.Reload(onProblem)
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() {
	close(w.stop)
	w.fsw.Close()
}
