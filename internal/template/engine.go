package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"
)

// Engine renders Go templates with the sprig function library. Parsed
// templates are cached by text.
type Engine struct {
	funcs template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// New creates a new template engine
func New() *Engine {
	funcs := sprig.TxtFuncMap()
	funcs["toYaml"] = toYAML
	funcs["fromYaml"] = fromYAML
	return &Engine{
		funcs: funcs,
		cache: make(map[string]*template.Template),
	}
}

// Parse checks that text is a valid template.
func (e *Engine) Parse(name, text string) error {
	_, err := e.parse(name, text)
	return err
}

// Render executes text against data. Missing map keys are errors.
func (e *Engine) Render(name, text string, data any) (string, error) {
	tmpl, err := e.parse(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// Replace renders every string inside value that contains a template action,
// walking maps and slices. Other values are returned as they are.
func (e *Engine) Replace(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}
		return e.Render(v, v, data)
	case map[string]any:
		return e.replaceMap(v, data)
	case []any:
		return e.replaceSlice(v, data)
	default:
		return value, nil
	}
}

func (e *Engine) replaceMap(m map[string]any, data any) (map[string]any, error) {
	result := make(map[string]any, len(m))
	for key, value := range m {
		replaced, err := e.Replace(value, data)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", key, err)
		}
		result[key] = replaced
	}
	return result, nil
}

func (e *Engine) replaceSlice(s []any, data any) ([]any, error) {
	result := make([]any, len(s))
	for i, value := range s {
		replaced, err := e.Replace(value, data)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		result[i] = replaced
	}
	return result, nil
}

func (e *Engine) parse(name, text string) (*template.Template, error) {
	e.mu.RLock()
	tmpl, ok := e.cache[text]
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	e.mu.Lock()
	e.cache[text] = tmpl
	e.mu.Unlock()
	return tmpl, nil
}

func toYAML(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func fromYAML(s string) (map[string]any, error) {
	var out map[string]any
	if err := yaml.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
