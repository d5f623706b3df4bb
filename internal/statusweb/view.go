// Package statusweb implements the read-only status view named in
// spec §4.5 and §6: a snapshot renderer over the launcher's pending,
// running and finished collections, plus a live push of slot-state
// events over a websocket. It performs no mutation of launcher state.
package statusweb

import (
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/ternarybob/crawlerd/internal/launcher"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<title>crawlerd — {{.NodeName}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { border: 1px solid #ccc; padding: 0.35rem 0.6rem; text-align: left; font-size: 0.9rem; }
th { background: #f2f2f2; }
h2 { margin-top: 2rem; }
</style>
</head>
<body>
<h1>crawlerd — {{.NodeName}}</h1>

<h2>Pending</h2>
<table>
<tr><th>Project</th><th>Spider</th><th>Job</th><th>Priority</th></tr>
{{range .Pending}}<tr><td>{{.Project}}</td><td>{{.Spider}}</td><td>{{.Job}}</td><td>{{.Priority}}</td></tr>
{{else}}<tr><td colspan="4">none</td></tr>{{end}}
</table>

<h2>Running</h2>
<table>
<tr><th>Slot</th><th>Project</th><th>Spider</th><th>Job</th><th>Pid</th><th>Runtime</th></tr>
{{range .Running}}<tr><td>{{.Slot}}</td><td>{{.Project}}</td><td>{{.Spider}}</td><td>{{.Job}}</td><td>{{.Pid}}</td><td>{{.RuntimeStr}}</td></tr>
{{else}}<tr><td colspan="6">none</td></tr>{{end}}
</table>

<h2>Finished</h2>
<table>
<tr><th>Project</th><th>Spider</th><th>Job</th><th>Exit</th><th>Runtime</th><th>Error</th></tr>
{{range .Finished}}<tr><td>{{.Project}}</td><td>{{.Spider}}</td><td>{{.Job}}</td><td>{{.ExitCode}}</td><td>{{.RuntimeStr}}</td><td>{{.ExitErr}}</td></tr>
{{else}}<tr><td colspan="6">none</td></tr>{{end}}
</table>
</body>
</html>
`

var page = template.Must(template.New("status").Parse(pageTemplate))

type pendingRow struct {
	Project  string
	Spider   string
	Job      string
	Priority float64
}

type runningRow struct {
	launcher.RunningJob
	RuntimeStr string
}

type finishedRow struct {
	launcher.FinishedJob
	RuntimeStr string
}

type pageData struct {
	NodeName string
	Pending  []pendingRow
	Running  []runningRow
	Finished []finishedRow
}

// Handler serves the read-only status snapshot at both "/" and
// "/jobs", per spec §6.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.pool.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := pageData{NodeName: s.nodeName}

	projects := make([]string, 0, len(snap.Pending))
	for p := range snap.Pending {
		projects = append(projects, p)
	}
	sort.Strings(projects)
	for _, p := range projects {
		for _, msg := range snap.Pending[p] {
			data.Pending = append(data.Pending, pendingRow{Project: p, Spider: msg.Spider, Job: msg.Job, Priority: msg.PriorityValue()})
		}
	}

	now := time.Now().UTC()
	for _, job := range snap.Running {
		data.Running = append(data.Running, runningRow{RunningJob: job, RuntimeStr: job.Runtime(now).String()})
	}
	for _, f := range snap.Finished {
		data.Finished = append(data.Finished, finishedRow{FinishedJob: f, RuntimeStr: f.Runtime().String()})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
