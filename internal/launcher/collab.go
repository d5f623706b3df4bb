package launcher

import "context"

// ProjectRegistry is the external collaborator that knows the current
// set of named projects. The poller refreshes its queue set whenever
// it is notified of a change; materializing the project/egg storage
// itself is out of scope here.
type ProjectRegistry interface {
	// UpdateProjects is called whenever the known project set changes.
	UpdateProjects(names []string)
}

// Scheduler is the external collaborator that accepts a CrawlMessage
// for a project. The repeat-count resubmission path calls it exactly
// the way an external HTTP scheduling API would, so the full API
// surface (out of scope here) can be substituted without touching the
// launcher.
type Scheduler interface {
	Schedule(project string, msg CrawlMessage) error
}

// Environment builds the process environment for one child invocation.
// It MUST set SCRAPY_PROJECT, SCRAPY_SPIDER, SCRAPY_JOB, SCRAPY_LOG_FILE
// and SCRAPY_FEED_URI, plus SCRAPY_SETTINGS_MODULE when a settings
// module applies.
type Environment interface {
	BuildEnv(ctx context.Context, slot int, msg CrawlMessage) (map[string]string, error)
}
