// Package prompts manages the per-subject tutor settings teachers author:
// a versioned store of system-prompt templates with lint checks, diffs
// between versions, and schema validation for the settings documents
// persisted in the docstore.
package prompts

import (
	"errors"
	"io"
	"strings"
	"text/template"
)

// Settings is one subject's tutoring configuration. System is a
// text/template rendered against Data before each model call.
type Settings struct {
	Subject string
	System  string
	Tone    string
	Version int
	Meta    map[string]string
}

// Data is the value a system template renders against. Lint rejects
// templates that reference anything else.
type Data struct {
	Subject string
	Student string
	Message string
	History string
	Tone    string
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
}

// ErrLintFailed reports that settings did not pass lint.
var ErrLintFailed = errors.New("tutor settings failed lint checks")

var lintProbe = Data{
	Subject: "subject",
	Student: "student",
	Message: "message",
	History: "history",
	Tone:    "tone",
}

// Lint checks settings before they are versioned: subject and system are
// required, the template must parse and reference only Data fields, and
// secrets-like content is rejected.
func Lint(s Settings) []Issue {
	var issues []Issue
	if s.Subject == "" {
		issues = append(issues, Issue{Rule: "subject.required", Message: "subject is required"})
	}
	if s.System == "" {
		issues = append(issues, Issue{Rule: "system.required", Message: "system prompt is empty"})
	} else {
		tmpl, err := template.New("system").Option("missingkey=error").Parse(s.System)
		if err != nil {
			issues = append(issues, Issue{Rule: "system.template", Message: "template does not parse: " + err.Error()})
		} else if err := tmpl.Execute(io.Discard, lintProbe); err != nil {
			issues = append(issues, Issue{Rule: "system.placeholders", Message: "template references unknown data: " + err.Error()})
		}
	}
	if secretLike(s.System) {
		issues = append(issues, Issue{Rule: "security.secrets", Message: "system prompt appears to contain secrets-like content"})
	}
	return issues
}

func secretLike(s string) bool {
	low := strings.ToLower(s)
	for _, needle := range []string{"aws_secret_access_key", "begin private key", "sk-"} {
		if strings.Contains(low, needle) {
			return true
		}
	}
	return false
}

// Render executes the settings' system template against d.
func (s Settings) Render(d Data) (string, error) {
	tmpl, err := template.New("system").Option("missingkey=error").Parse(s.System)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
