// Package launcher implements the launcher/scheduling subsystem: durable
// per-project priority queues, a round-robin poller, a bounded pool of
// process slots, and the process supervisor that runs and observes each
// crawl's child process.
package launcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// CrawlMessage is the record a scheduling client submits for one crawl
// run. Project, Spider, Job and Priority are required at dequeue time;
// a message missing any of them is a malformed message (error taxonomy
// item 3), not a fatal daemon error. Args carries the caller-supplied
// key/value pairs passed to the child as "-a key=value"; Settings
// carries child settings passed as "-s KEY=VALUE".
type CrawlMessage struct {
	Project  string            `json:"project" validate:"required"`
	Spider   string            `json:"spider" validate:"required"`
	Job      string            `json:"job" validate:"required"`
	Priority *float64          `json:"priority" validate:"required"`
	Count    int               `json:"count"`
	Args     map[string]string `json:"args,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// Validate reports the first validation error, or nil if msg carries
// every field required at dequeue time.
func (m CrawlMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("malformed crawl message: %w", err)
	}
	return nil
}

// PriorityValue returns the dereferenced priority, or 0 if unset.
func (m CrawlMessage) PriorityValue() float64 {
	if m.Priority == nil {
		return 0
	}
	return *m.Priority
}

// EffectiveCount returns Count, defaulting to 1 when unset or invalid.
func (m CrawlMessage) EffectiveCount() int {
	if m.Count < 1 {
		return 1
	}
	return m.Count
}

// WithCount returns a copy of m with Count set to n.
func (m CrawlMessage) WithCount(n int) CrawlMessage {
	cp := m
	cp.Count = n
	return cp
}

// WithNewJob returns a copy of m with a freshly generated job id — used
// by the repeat-count resubmission path, which must never reuse the
// completed job's id.
func (m CrawlMessage) WithNewJob() CrawlMessage {
	cp := m
	cp.Job = NewJobID()
	return cp
}

// NewJobID returns a 32-character hex job identifier, the Go analogue
// of the source's uuid1().hex.
func NewJobID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CrawlArgs flattens msg.Args into "-a key=value" pairs in sorted key
// order, so argv construction is deterministic.
func (m CrawlMessage) CrawlArgs() []string {
	return flattenFlag(m.Args, "-a")
}

// SettingsArgs flattens msg.Settings into "-s KEY=VALUE" pairs in
// sorted key order.
func (m CrawlMessage) SettingsArgs() []string {
	return flattenFlag(m.Settings, "-s")
}

func flattenFlag(kv map[string]string, flag string) []string {
	if len(kv) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, flag, fmt.Sprintf("%s=%s", k, kv[k]))
	}
	return out
}
