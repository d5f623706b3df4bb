package launcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// projectsFile is the on-disk shape of an optional static project
// list, used to bootstrap the ProjectRegistry when no external
// project/egg storage collaborator is wired in.
type projectsFile struct {
	Projects []string `yaml:"projects"`
}

// LoadStaticProjects reads a YAML file of the form:
//
//	projects:
//	  - news
//	  - docs
//
// and returns the listed project names. A missing file yields an empty
// list rather than an error, since static bootstrap is optional.
func LoadStaticProjects(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("launcher: read projects file: %w", err)
	}

	var pf projectsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("launcher: parse projects file: %w", err)
	}
	return pf.Projects, nil
}
