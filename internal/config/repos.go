// internal/config/repos.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRepos reads the organization → repositories mapping from a YAML file:
//
//	acme:
//	  - addons
//	  - extras
//
// Parsed with yaml.v3 directly: organization names are case-sensitive and
// must survive untouched, and repository order within an organization is the
// processing order.
func LoadRepos(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read repos file: %w", err)
	}
	var repos map[string][]string
	if err := yaml.Unmarshal(raw, &repos); err != nil {
		return nil, fmt.Errorf("parse repos file %s: %w", path, err)
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("repos file %s lists no repositories", path)
	}
	return repos, nil
}
