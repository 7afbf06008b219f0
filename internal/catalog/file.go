package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"webswarm/internal/domain"
)

type fileCatalog struct {
	Tasks []domain.TaskSpec `yaml:"tasks"`
}

// LoadFile reads a YAML task list. Prompts are text/template documents
// rendered against c, e.g. "Visit {{.TargetURL}} as {{.Username}}".
func LoadFile(path string, c Credentials) ([]domain.TaskSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw, c)
}

func Parse(raw []byte, c Credentials) ([]domain.TaskSpec, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("catalog has no tasks")
	}

	seen := make(map[string]struct{}, len(doc.Tasks))
	out := make([]domain.TaskSpec, 0, len(doc.Tasks))
	for i, task := range doc.Tasks {
		task.ID = strings.TrimSpace(task.ID)
		task.AgentID = strings.TrimSpace(task.AgentID)
		if task.ID == "" || task.AgentID == "" || strings.TrimSpace(task.Prompt) == "" {
			return nil, fmt.Errorf("catalog task %d: id, agent_id and prompt are required", i)
		}
		if _, dup := seen[task.ID]; dup {
			return nil, fmt.Errorf("catalog task %d: duplicate id %q", i, task.ID)
		}
		seen[task.ID] = struct{}{}

		tmpl, err := template.New(task.ID).Option("missingkey=error").Parse(task.Prompt)
		if err != nil {
			return nil, fmt.Errorf("catalog task %q: parse prompt: %w", task.ID, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, c); err != nil {
			return nil, fmt.Errorf("catalog task %q: render prompt: %w", task.ID, err)
		}
		task.Prompt = strings.TrimSpace(buf.String())
		if task.Type == "" {
			task.Type = "custom"
		}
		if task.Description == "" {
			task.Description = task.ID
		}
		out = append(out, task)
	}
	return out, nil
}
