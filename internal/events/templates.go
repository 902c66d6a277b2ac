package events

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MessageTemplateEngine provides dynamic message generation for events.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

func (e *MessageTemplateEngine) loadDefaultTemplates() {
	e.templates[ReasonDependentCreated] = "Created dependent {{.Dependent}} of {{.Kind}} {{.Name}}"
	e.templates[ReasonDependentUpdated] = "Updated dependent {{.Dependent}} of {{.Kind}} {{.Name}}"
	e.templates[ReasonDependentDeleted] = "Deleted dependent {{.Dependent}} of {{.Kind}} {{.Name}}"
	e.templates[ReasonDependentFailed] = "Dependent {{.Dependent}} of {{.Kind}} {{.Name}} failed{{if .Error}}: {{.Error}}{{end}}"

	e.templates[ReasonReady] = "{{.Kind}} {{.Name}} is ready{{if .Duration}} after {{.Duration}}{{end}}"
	e.templates[ReasonReconcileFailed] = "Reconciliation of {{.Kind}} {{.Name}} failed{{if .Attempts}} on attempt {{.Attempts}}{{end}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonRetriesExhausted] = "Giving up on {{.Kind}} {{.Name}}{{if .Attempts}} after {{.Attempts}} attempts{{end}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonFinalizerAdded] = "Added finalizer {{.Finalizer}} to {{.Kind}} {{.Name}}"
	e.templates[ReasonCleanupPending] = "Waiting for dependents of {{.Kind}} {{.Name}} to be deleted{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonFinalizerRemoved] = "Cleanup of {{.Kind}} {{.Name}} finished, removed finalizer {{.Finalizer}}"
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	template, exists := e.templates[reason]
	e.mu.RUnlock()
	if !exists {
		return fmt.Sprintf("Event: %s for %s/%s", string(reason), data.Namespace, data.Name)
	}

	return e.renderTemplate(template, data)
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, template string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = template
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	template, exists := e.templates[reason]
	return template, exists
}

// renderTemplate performs simple variable substitution followed by
// {{if .Field}}...{{end}} blocks. Conditionals must not nest.
func (e *MessageTemplateEngine) renderTemplate(template string, data EventData) string {
	result := template

	result = strings.ReplaceAll(result, "{{.Name}}", data.Name)
	result = strings.ReplaceAll(result, "{{.Namespace}}", data.Namespace)
	result = strings.ReplaceAll(result, "{{.Kind}}", data.Kind)
	result = strings.ReplaceAll(result, "{{.Dependent}}", data.Dependent)
	result = strings.ReplaceAll(result, "{{.Finalizer}}", data.Finalizer)
	result = strings.ReplaceAll(result, "{{.Error}}", data.Error)

	duration := ""
	if data.Duration > 0 {
		duration = data.Duration.String()
	}
	result = strings.ReplaceAll(result, "{{.Duration}}", duration)

	attempts := ""
	if data.Attempts > 0 {
		attempts = strconv.Itoa(data.Attempts)
	}
	result = strings.ReplaceAll(result, "{{.Attempts}}", attempts)

	result = renderConditional(result, "{{if .Error}}", data.Error != "")
	result = renderConditional(result, "{{if .Duration}}", data.Duration > 0)
	result = renderConditional(result, "{{if .Attempts}}", data.Attempts > 0)

	return result
}

// renderConditional resolves every block opened by startMarker.
func renderConditional(template, startMarker string, condition bool) string {
	const endMarker = "{{end}}"
	for {
		startIndex := strings.Index(template, startMarker)
		if startIndex == -1 {
			return template
		}
		endIndex := strings.Index(template[startIndex:], endMarker)
		if endIndex == -1 {
			return template
		}
		endIndex += startIndex

		before := template[:startIndex]
		after := template[endIndex+len(endMarker):]
		if condition {
			template = before + template[startIndex+len(startMarker):endIndex] + after
		} else {
			template = before + after
		}
	}
}
