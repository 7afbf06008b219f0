// Package catalog holds the natural-language tasks handed to browser agents.
package catalog

import (
	"fmt"
	"strings"

	"webswarm/internal/domain"
)

type Credentials struct {
	TargetURL string
	Username  string
	Password  string
}

// Default returns the five fixed tasks of a catalog run, one per slot.
func Default(c Credentials) []domain.TaskSpec {
	url, user, pass := c.TargetURL, c.Username, c.Password
	return []domain.TaskSpec{
		{
			ID:          "task_1",
			AgentID:     "Agent-1",
			Type:        "exploration",
			Description: "Page exploration and navigation test",
			Prompt: fmt.Sprintf(`Visit %s and do the following:
1. Wait for the page to finish loading
2. Read the page title and main content
3. Identify every navigation link and menu item
4. Click the first 3 main navigation links and verify each page loads
5. Return to the home page
6. Summarise the page structure and the features available

Record the result of every step in detail.`, url),
		},
		{
			ID:          "task_2",
			AgentID:     "Agent-2",
			Type:        "login_test",
			Description: "Login test",
			Prompt: fmt.Sprintf(`Visit %s and test the login feature:
1. Find the login entry point (login button, login link or login form)
2. If the form only appears after clicking a login button, click it first
3. Find the username and password inputs
4. Enter username: %s
5. Enter password: %s
6. Click the login button
7. Verify the login succeeded (welcome message, user name shown, or redirect to a user page)
8. If the login succeeded, find and click the logout button

Record the login process and result in detail.`, url, user, pass),
		},
		{
			ID:          "task_3",
			AgentID:     "Agent-3",
			Type:        "form_test",
			Description: "Form test",
			Prompt: fmt.Sprintf(`Visit %s and test every form:
1. Identify all forms on the page except the login form
2. For each form:
   - identify every input field
   - fill test data according to the field type:
     * email: test@example.com
     * text: test data
     * number: 123
     * date: today
     * select: the first option
     * checkbox: checked
   - submit the form
   - observe and record the submission result
3. If a form requires login, log in first with %s/%s

Record the result for every form in detail.`, url, user, pass),
		},
		{
			ID:          "task_4",
			AgentID:     "Agent-4",
			Type:        "button_test",
			Description: "Button and interactive element test",
			Prompt: fmt.Sprintf(`Visit %s and test every interactive element:
1. Identify all buttons on the page (excluding form submit buttons)
2. Identify all clickable widgets (dropdowns, tabs, collapsible panels, ...)
3. Test them one by one:
   - click the button
   - observe how the page changes
   - verify the feature works
4. Test opening dropdowns and selecting an entry
5. Test switching tabs
6. Test expanding and collapsing collapsible sections

Record the result for every interactive element in detail.`, url),
		},
		{
			ID:          "task_5",
			AgentID:     "Agent-5",
			Type:        "comprehensive_test",
			Description: "Comprehensive feature test",
			Prompt: fmt.Sprintf(`Visit %s and run a comprehensive test:
1. Test search (if present):
   - find the search box
   - enter a test keyword
   - submit the search
   - verify the results
2. Test data display:
   - find data tables or lists
   - verify the data is displayed correctly
   - test pagination (if present)
   - test sorting (if present)
3. Test file upload (if present)
4. Test any other special feature
5. If login is required, use %s/%s

Record every result in detail.`, url, user, pass),
		},
	}
}

// Example returns the three tasks of the interactive example run.
func Example(c Credentials) []domain.TaskSpec {
	url, user, pass := c.TargetURL, c.Username, c.Password
	return []domain.TaskSpec{
		{
			ID:          "example_1",
			AgentID:     "Agent-1",
			Type:        "login_test",
			Description: "Login test",
			Prompt: fmt.Sprintf(`Visit %s, find the login form, log in with username %s and password %s,
verify the login succeeded, then log out.`, url, user, pass),
		},
		{
			ID:          "example_2",
			AgentID:     "Agent-2",
			Type:        "navigation_test",
			Description: "Navigation test",
			Prompt: fmt.Sprintf(`Visit %s, find every navigation link, click the first 3 links,
verify each page loads and record the page titles.`, url),
		},
		{
			ID:          "example_3",
			AgentID:     "Agent-3",
			Type:        "form_test",
			Description: "Form test",
			Prompt: fmt.Sprintf(`Visit %s, find every form, fill the fields sensibly and submit,
then record the submission result. If login is required, use %s/%s.`, url, user, pass),
		},
	}
}

// Sequential returns the short tasks used by the sequential comparison run.
func Sequential(c Credentials) []domain.TaskSpec {
	url := c.TargetURL
	return []domain.TaskSpec{
		{ID: "sequential_1", AgentID: "Agent-1", Type: "login_test", Description: "Login test",
			Prompt: fmt.Sprintf("Visit %s and log in with %s/%s", url, c.Username, c.Password)},
		{ID: "sequential_2", AgentID: "Agent-1", Type: "navigation_test", Description: "Navigation test",
			Prompt: fmt.Sprintf("Visit %s and test every navigation link", url)},
		{ID: "sequential_3", AgentID: "Agent-1", Type: "form_test", Description: "Form test",
			Prompt: fmt.Sprintf("Visit %s and test every form", url)},
	}
}

func DiscoveryPrompt(targetURL string) string {
	return fmt.Sprintf(`Visit %s and discover its feature points.

Analyse the page carefully and identify feature points of these kinds:

1. **Authentication**:
   - login form (username and password inputs)
   - registration form
   - logout button
   - forgot-password link

2. **Navigation**:
   - top navigation bar links
   - sidebar menu items
   - breadcrumbs
   - footer links

3. **Forms** (excluding the login form):
   - search form
   - data submission form
   - filter form
   - settings form

4. **Interactive elements**:
   - plain buttons (excluding form submit buttons)
   - dropdown menus
   - tabs
   - modal triggers
   - collapsible panels

5. **Data display**:
   - data tables
   - lists
   - cards
   - charts

6. **Special features**:
   - file upload
   - file download
   - print button
   - export

For every feature point record:
- feature type
- description
- location
- visible text

List every discovered feature point in a structured way and avoid duplicates.`, targetURL)
}

var stepTemplates = map[domain.Category]string{
	domain.CategoryAuth:        "- Test %s: find the form, fill in username and password, submit and verify the result",
	domain.CategoryNavigation:  "- Test %s: find the navigation links, click them and verify the page changes",
	domain.CategoryDataEntry:   "- Test %s: find the form, fill the fields sensibly, submit and verify",
	domain.CategoryInteraction: "- Test %s: find the interactive element, operate it and observe the result",
	domain.CategoryDisplay:     "- Test %s: find the data display area and verify the data is shown correctly",
}

// FeatureStep renders the single test step for one feature point.
func FeatureStep(f domain.FeaturePoint) string {
	tmpl, ok := stepTemplates[f.Category]
	if !ok {
		return "- Test " + f.Description
	}
	return fmt.Sprintf(tmpl, f.Description)
}

// CombinedTask merges the steps of one allocation into a single slot task.
func CombinedTask(c Credentials, features []domain.FeaturePoint) string {
	steps := make([]string, 0, len(features))
	for _, f := range features {
		steps = append(steps, FeatureStep(f))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Visit %s and test the following feature points:\n\n", c.TargetURL)
	b.WriteString(strings.Join(steps, "\n"))
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("1. Test each feature point in order\n")
	b.WriteString("2. Record the result of every test\n")
	fmt.Fprintf(&b, "3. If login is required, use username: %s, password: %s\n", c.Username, c.Password)
	b.WriteString("4. Describe how every test was executed and what happened\n")
	return b.String()
}
