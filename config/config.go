package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"dario.cat/mergo"
	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"
)

// C holds the merged settings tree. Keys are addressed with dots, e.g.
// "timeouts.read_reply".
type C struct {
	path        string
	files       []string
	Settings    map[string]any
	oldSettings map[string]any
	callbacks   []func(*C)
	l           *logrus.Logger
	reloadLock  sync.Mutex
}

func NewC(l *logrus.Logger) *C {
	return &C{
		Settings: make(map[string]any),
		l:        l,
	}
}

// Sub wraps one element of a list setting, such as an entry of controllers,
// so the typed getters can be used on it.
func (c *C) Sub(m map[string]any) *C {
	return &C{Settings: m, l: c.l}
}

// Load reads path, or every .yml/.yaml file below it in lexical order. Later
// files override earlier ones and lists are appended.
func (c *C) Load(path string) error {
	files, err := findFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no config files found at %s", path)
	}

	var merged map[string]any
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}

		var next map[string]any
		if err := yaml.Unmarshal(b, &next); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}

		if err := mergo.Merge(&next, merged, mergo.WithAppendSlice); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		merged = next
	}

	c.path = path
	c.files = files
	c.Settings = merged
	return nil
}

func (c *C) LoadString(raw string) error {
	if raw == "" {
		return errors.New("Empty configuration")
	}

	var m map[string]any
	if err := yaml.Unmarshal([]byte(raw), &m); err != nil {
		return err
	}
	c.Settings = m
	return nil
}

// RegisterReloadCallback adds f to the functions run after every successful
// reload. Callbacks run in registration order on the reloading goroutine and
// should use HasChanged to skip work.
func (c *C) RegisterReloadCallback(f func(*C)) {
	c.callbacks = append(c.callbacks, f)
}

// HasChanged reports whether k differs between the settings before and after
// the last reload. An empty k compares everything. Values are compared by
// their yaml rendering.
func (c *C) HasChanged(k string) bool {
	if c.oldSettings == nil {
		return false
	}

	nv, ov := any(c.Settings), any(c.oldSettings)
	if k != "" {
		nv, ov = c.get(k, c.Settings), c.get(k, c.oldSettings)
	}

	newVals, err := yaml.Marshal(nv)
	if err != nil {
		c.l.WithField("config_path", k).WithError(err).Error("Error while marshaling new config")
	}
	oldVals, err := yaml.Marshal(ov)
	if err != nil {
		c.l.WithField("config_path", k).WithError(err).Error("Error while marshaling old config")
	}

	return string(newVals) != string(oldVals)
}

// CatchHUP reloads from the path given to Load on every SIGHUP until ctx is
// done.
func (c *C) CatchHUP(ctx context.Context) {
	if c.path == "" {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				c.l.Info("Caught HUP, reloading config")
				c.ReloadConfig()
			}
		}
	}()
}

func (c *C) ReloadConfig() {
	err := c.reload(func() error { return c.Load(c.path) })
	if err != nil {
		c.l.WithField("config_path", c.path).WithError(err).Error("Error occurred while reloading config")
	}
}

func (c *C) ReloadConfigString(raw string) error {
	return c.reload(func() error { return c.LoadString(raw) })
}

func (c *C) reload(load func() error) error {
	c.reloadLock.Lock()
	defer c.reloadLock.Unlock()

	prev := maps.Clone(c.Settings)
	if err := load(); err != nil {
		return err
	}
	c.oldSettings = prev

	for _, f := range c.callbacks {
		f(c)
	}
	return nil
}

func (c *C) Get(k string) any {
	return c.get(k, c.Settings)
}

func (c *C) IsSet(k string) bool {
	return c.get(k, c.Settings) != nil
}

// GetString returns k formatted with %v, or d when k is not set.
func (c *C) GetString(k, d string) string {
	r := c.Get(k)
	if r == nil {
		return d
	}
	return fmt.Sprintf("%v", r)
}

func (c *C) GetMap(k string, d map[string]any) map[string]any {
	if v, ok := c.Get(k).(map[string]any); ok {
		return v
	}
	return d
}

// GetMapSlice returns the maps in the list at k. Entries that are not maps are
// skipped.
func (c *C) GetMapSlice(k string) []map[string]any {
	r, ok := c.Get(k).([]any)
	if !ok {
		return nil
	}

	v := make([]map[string]any, 0, len(r))
	for _, e := range r {
		if m, ok := e.(map[string]any); ok {
			v = append(v, m)
		}
	}
	return v
}

// GetInt accepts decimal, 0x hex and 0o octal, since register values are
// usually written in hex.
func (c *C) GetInt(k string, d int) int {
	v, err := strconv.ParseInt(c.GetString(k, strconv.Itoa(d)), 0, 64)
	if err != nil {
		return d
	}
	return int(v)
}

func (c *C) GetUint32(k string, d uint32) uint32 {
	r := c.GetInt(k, int(d))
	if r < 0 || uint64(r) > uint64(math.MaxUint32) {
		return d
	}
	return uint32(r)
}

// GetBool also accepts y/yes and n/no in any case.
func (c *C) GetBool(k string, d bool) bool {
	r := strings.ToLower(c.GetString(k, strconv.FormatBool(d)))
	switch r {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}

	v, err := strconv.ParseBool(r)
	if err != nil {
		return d
	}
	return v
}

func (c *C) GetDuration(k string, d time.Duration) time.Duration {
	v, err := time.ParseDuration(c.GetString(k, ""))
	if err != nil {
		return d
	}
	return v
}

func (c *C) get(k string, v any) any {
	for _, p := range strings.Split(k, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		if v, ok = m[p]; !ok {
			return nil
		}
	}
	return v
}

// findFiles returns path itself when it is a file, whatever its extension.
// Directories are walked for yaml files. A missing path yields no files.
func findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}

	if !info.IsDir() {
		ap, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return []string{ap}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("problem while reading directory %s: %w", p, err)
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".yml", ".yaml":
		default:
			return nil
		}

		ap, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files = append(files, ap)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
