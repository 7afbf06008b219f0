package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webswarm/internal/domain"
)

var creds = Credentials{TargetURL: "http://site.local/", Username: "qa", Password: "pw"}

func TestDefaultCatalog(t *testing.T) {
	tasks := Default(creds)
	if len(tasks) != 5 {
		t.Fatalf("tasks=%d want 5", len(tasks))
	}
	wantTypes := []string{"exploration", "login_test", "form_test", "button_test", "comprehensive_test"}
	for i, task := range tasks {
		if task.Type != wantTypes[i] {
			t.Fatalf("task %d type=%q want %q", i, task.Type, wantTypes[i])
		}
		if task.AgentID != "Agent-"+string(rune('1'+i)) {
			t.Fatalf("task %d agent=%q", i, task.AgentID)
		}
		if !strings.Contains(task.Prompt, creds.TargetURL) {
			t.Fatalf("task %d prompt does not mention target", i)
		}
	}
	if !strings.Contains(tasks[1].Prompt, "username: qa") || !strings.Contains(tasks[1].Prompt, "password: pw") {
		t.Fatalf("login prompt missing credentials: %s", tasks[1].Prompt)
	}
}

func TestExampleAndSequential(t *testing.T) {
	if got := len(Example(creds)); got != 3 {
		t.Fatalf("example tasks=%d", got)
	}
	seq := Sequential(creds)
	if len(seq) != 3 {
		t.Fatalf("sequential tasks=%d", len(seq))
	}
	if !strings.Contains(seq[0].Prompt, "qa/pw") {
		t.Fatalf("sequential login prompt=%q", seq[0].Prompt)
	}
}

func TestFeatureStep(t *testing.T) {
	tests := []struct {
		name    string
		feature domain.FeaturePoint
		want    string
	}{
		{
			name:    "auth",
			feature: domain.FeaturePoint{Category: domain.CategoryAuth, Description: "Login form"},
			want:    "- Test Login form: find the form, fill in username and password",
		},
		{
			name:    "display",
			feature: domain.FeaturePoint{Category: domain.CategoryDisplay, Description: "Data table"},
			want:    "- Test Data table: find the data display area",
		},
		{
			name:    "unknown category",
			feature: domain.FeaturePoint{Category: "billing", Description: "Invoice"},
			want:    "- Test Invoice",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FeatureStep(tc.feature)
			if !strings.HasPrefix(got, tc.want) {
				t.Fatalf("FeatureStep()=%q want prefix %q", got, tc.want)
			}
		})
	}
	if got := FeatureStep(domain.FeaturePoint{Category: "billing", Description: "Invoice"}); got != "- Test Invoice" {
		t.Fatalf("fallback step=%q", got)
	}
}

func TestCombinedTask(t *testing.T) {
	features := []domain.FeaturePoint{
		{Category: domain.CategoryAuth, Description: "Login form"},
		{Category: domain.CategoryAuth, Description: "Registration form"},
	}
	got := CombinedTask(creds, features)
	for _, want := range []string{
		"Visit http://site.local/",
		"- Test Login form",
		"- Test Registration form",
		"username: qa, password: pw",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("combined task missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Login form") > strings.Index(got, "Registration form") {
		t.Fatalf("steps out of order:\n%s", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	doc := `
tasks:
  - id: cart
    agent_id: Agent-1
    type: cart_test
    description: Cart test
    prompt: "Visit {{.TargetURL}} and add an item to the cart as {{.Username}}"
  - id: about
    agent_id: Agent-2
    prompt: "Open {{.TargetURL}}about"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	tasks, err := LoadFile(path, creds)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks=%d", len(tasks))
	}
	if tasks[0].Prompt != "Visit http://site.local/ and add an item to the cart as qa" {
		t.Fatalf("prompt=%q", tasks[0].Prompt)
	}
	if tasks[1].Type != "custom" || tasks[1].Description != "about" {
		t.Fatalf("defaults not applied: %+v", tasks[1])
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := map[string]string{
		"empty":       "tasks: []",
		"missing id":  "tasks:\n  - agent_id: Agent-1\n    prompt: x",
		"duplicate":   "tasks:\n  - {id: a, agent_id: Agent-1, prompt: x}\n  - {id: a, agent_id: Agent-2, prompt: y}",
		"unknown key": "tasks:\n  - {id: a, agent_id: Agent-1, prompt: \"{{.Token}}\"}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), creds); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
