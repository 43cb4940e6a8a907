package config

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// SchoolDefaults are the lists a new school starts with.
type SchoolDefaults struct {
	Departments []string `yaml:"departments"`
	GradeLevels []string `yaml:"grade_levels"`
	Subjects    []string `yaml:"subjects"`
}

// BadgeDefinition is one entry of the built-in badge catalog.
type BadgeDefinition struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Criteria    string `yaml:"criteria"`
	Points      int    `yaml:"points"`
}

// Defaults is the parsed content of defaults.yaml.
type Defaults struct {
	School SchoolDefaults    `yaml:"school"`
	Badges []BadgeDefinition `yaml:"badges"`
}

var (
	defaultsOnce sync.Once
	defaults     *Defaults
	defaultsErr  error
)

// LoadDefaults parses the embedded defaults once. Callers get copies of the slices.
func LoadDefaults() (*Defaults, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = ParseDefaults(defaultsYAML)
	})
	if defaultsErr != nil {
		return nil, defaultsErr
	}
	out := &Defaults{
		School: SchoolDefaults{
			Departments: append([]string(nil), defaults.School.Departments...),
			GradeLevels: append([]string(nil), defaults.School.GradeLevels...),
			Subjects:    append([]string(nil), defaults.School.Subjects...),
		},
		Badges: append([]BadgeDefinition(nil), defaults.Badges...),
	}
	return out, nil
}

// ParseDefaults decodes a defaults document.
func ParseDefaults(data []byte) (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse defaults: %w", err)
	}
	seen := make(map[string]struct{}, len(d.Badges))
	for _, b := range d.Badges {
		if b.Code == "" {
			return nil, fmt.Errorf("parse defaults: badge %q has no code", b.Name)
		}
		if _, dup := seen[b.Code]; dup {
			return nil, fmt.Errorf("parse defaults: duplicate badge code %q", b.Code)
		}
		seen[b.Code] = struct{}{}
	}
	return &d, nil
}
