package compliance

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a rule set.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRuleFile reads additional rules from a YAML file. Rules with no ID
// are rejected; everything else is taken as-is and registered over any
// built-in rule with the same ID.
func LoadRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	for i, rule := range f.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d has no id", i)
		}
	}
	return f.Rules, nil
}

// RuleWatcher reloads a rule file into the store whenever it changes.
type RuleWatcher struct {
	logger  *zap.Logger
	path    string
	store   *RuleStore
	watcher *fsnotify.Watcher
	done    chan struct{}

	debounce time.Duration
}

// NewRuleWatcher creates a watcher for the given rule file.
func NewRuleWatcher(logger *zap.Logger, path string, store *RuleStore) (*RuleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &RuleWatcher{
		logger:   logger,
		path:     path,
		store:    store,
		watcher:  watcher,
		done:     make(chan struct{}),
		debounce: time.Second,
	}, nil
}

// Start begins watching. The directory is watched too, so editors that
// replace the file by rename still trigger a reload.
func (w *RuleWatcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	go w.run()
	w.logger.Info("Rule file watcher started", zap.String("path", w.path))
	return nil
}

// Stop ends watching.
func (w *RuleWatcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *RuleWatcher) run() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: editors fire several events per save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Rule file watcher error", zap.Error(err))
		}
	}
}

func (w *RuleWatcher) reload() {
	rules, err := LoadRuleFile(w.path)
	if err != nil {
		w.logger.Error("Rule file reload failed; keeping current rules",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}
	for _, rule := range rules {
		w.store.Add(rule)
	}
	w.logger.Info("Rule file reloaded",
		zap.String("path", w.path),
		zap.Int("rules", len(rules)),
	)
}
