package launcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultEnvironment is the launcher's Environment collaborator. It
// builds the child process environment from configured log/items
// roots plus any settings module name, following the child-process
// invocation contract of spec §6.
type DefaultEnvironment struct {
	LogsDir        string
	ItemsDir       string
	SettingsModule string
	AdditionalEnv  map[string]string
}

// NewDefaultEnvironment returns an Environment rooted at logsDir and
// itemsDir.
func NewDefaultEnvironment(logsDir, itemsDir, settingsModule string) *DefaultEnvironment {
	return &DefaultEnvironment{LogsDir: logsDir, ItemsDir: itemsDir, SettingsModule: settingsModule}
}

// BuildEnv constructs the SCRAPY_* environment variables for one
// child invocation and ensures the log/items directories for it exist.
func (e *DefaultEnvironment) BuildEnv(_ context.Context, slot int, msg CrawlMessage) (map[string]string, error) {
	logPath := filepath.Join(e.LogsDir, msg.Project, msg.Spider, msg.Job+".log")
	itemsPath := filepath.Join(e.ItemsDir, msg.Project, msg.Spider, msg.Job+".jl")

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("environment: create log dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(itemsPath), 0755); err != nil {
		return nil, fmt.Errorf("environment: create items dir: %w", err)
	}

	env := map[string]string{
		"SCRAPY_PROJECT":  msg.Project,
		"SCRAPY_SPIDER":   msg.Spider,
		"SCRAPY_JOB":      msg.Job,
		"SCRAPY_LOG_FILE": logPath,
		"SCRAPY_FEED_URI": itemsPath,
	}
	if e.SettingsModule != "" {
		env["SCRAPY_SETTINGS_MODULE"] = e.SettingsModule
	}
	for k, v := range e.AdditionalEnv {
		env[k] = v
	}
	return env, nil
}
