package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionBack     ActionKind = "back"
	ActionWait     ActionKind = "wait"
	ActionDone     ActionKind = "done"
)

// Action is one step chosen by the planner.
type Action struct {
	Action   ActionKind `json:"action"`
	URL      string     `json:"url,omitempty"`
	Selector string     `json:"selector,omitempty"`
	Text     string     `json:"text,omitempty"`
	Seconds  float64    `json:"seconds,omitempty"`
	Result   string     `json:"result,omitempty"`
	Success  *bool      `json:"success,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

// ParseAction extracts the first JSON object from model output. Markdown
// fences and surrounding prose are ignored.
func ParseAction(raw string) (Action, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return Action{}, errors.New("no JSON object in model output")
	}
	var act Action
	dec := json.NewDecoder(bytes.NewReader([]byte(text[start:])))
	if err := dec.Decode(&act); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	act.Action = ActionKind(strings.ToLower(strings.TrimSpace(string(act.Action))))
	if err := act.validate(); err != nil {
		return Action{}, err
	}
	return act, nil
}

func (a Action) validate() error {
	switch a.Action {
	case ActionNavigate:
		if strings.TrimSpace(a.URL) == "" {
			return errors.New("navigate requires url")
		}
	case ActionClick:
		if strings.TrimSpace(a.Selector) == "" {
			return errors.New("click requires selector")
		}
	case ActionType:
		if strings.TrimSpace(a.Selector) == "" {
			return errors.New("type requires selector")
		}
	case ActionBack, ActionWait, ActionDone:
	case "":
		return errors.New("missing action")
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
	return nil
}

func (a Action) String() string {
	switch a.Action {
	case ActionNavigate:
		return fmt.Sprintf("navigate %s", a.URL)
	case ActionClick:
		return fmt.Sprintf("click %s", a.Selector)
	case ActionType:
		return fmt.Sprintf("type %q into %s", a.Text, a.Selector)
	case ActionWait:
		return fmt.Sprintf("wait %.1fs", a.Seconds)
	default:
		return string(a.Action)
	}
}
