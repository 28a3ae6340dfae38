package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"aulaplan/internal/schedule"
)

// Config models aulaplan.yml.
type Config struct {
	Workspace struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"workspace"`
	Schedule struct {
		HoursPerDay int    `yaml:"hours_per_day"`
		DefaultView string `yaml:"default_view"`
	} `yaml:"schedule"`
	Categories struct {
		Catalog map[string]Category `yaml:"catalog"`
	} `yaml:"categories"`
	Submissions struct {
		// Allowed attachment kinds for deliverable submissions.
		AllowedKinds []string `yaml:"allowed_kinds"`
	} `yaml:"submissions"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Category struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Webhook struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with aulaplan config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	if c.Workspace.Kind != "classroom" {
		return fmt.Errorf("config.workspace.kind must be 'classroom'")
	}
	if c.Schedule.HoursPerDay < schedule.MinHoursPerDay || c.Schedule.HoursPerDay > schedule.MaxHoursPerDay {
		return fmt.Errorf("config.schedule.hours_per_day must be between %d and %d", schedule.MinHoursPerDay, schedule.MaxHoursPerDay)
	}
	if !schedule.ValidView(c.Schedule.DefaultView) {
		return fmt.Errorf("config.schedule.default_view must be one of meses, dias, horas")
	}
	for id, cat := range c.Categories.Catalog {
		if id == "" {
			return fmt.Errorf("config.categories.catalog contains empty category id")
		}
		if cat.Name == "" {
			return fmt.Errorf("category %s has no name", id)
		}
	}
	for _, kind := range c.Submissions.AllowedKinds {
		if kind == "" {
			return fmt.Errorf("config.submissions.allowed_kinds contains empty kind")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.ID == "" {
			return fmt.Errorf("webhook %d has empty id", i)
		}
		if hook.URL == "" {
			return fmt.Errorf("webhook %s has empty url", hook.ID)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "aulaplan.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	cfg.Workspace.ID = workspaceID
	cfg.Workspace.Kind = "classroom"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, workspaceID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  id: %s
  kind: classroom

schedule:
  hours_per_day: 6
  default_view: meses

categories:
  catalog:
    ciencia:
      name: "Ciencia"
      description: "Proyectos de ciencias naturales y experimentales"
    tecnologia:
      name: "Tecnología"
      description: "Proyectos de software, robótica y electrónica"
    sociales:
      name: "Ciencias Sociales"
      description: "Proyectos de historia, geografía y comunidad"
    arte:
      name: "Arte"
      description: "Proyectos artísticos y culturales"
    emprendimiento:
      name: "Emprendimiento"
      description: "Proyectos productivos y de negocio escolar"

submissions:
  allowed_kinds: [document, image, video, link]

webhooks: []
`
