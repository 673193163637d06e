package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type TemplateName string

const (
	TemplateAutofill   TemplateName = "autofill.tmpl"
	TemplateDeepReport TemplateName = "deep_report.tmpl"
)

var knownTemplates = []TemplateName{
	TemplateAutofill,
	TemplateDeepReport,
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}

type PromptBuilder struct {
	mu        sync.RWMutex
	templates map[TemplateName]*template.Template
}

var (
	defaultBuilderOnce sync.Once
	defaultBuilder     *PromptBuilder
)

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: make(map[TemplateName]*template.Template),
	}
}

func DefaultPromptBuilder() *PromptBuilder {
	defaultBuilderOnce.Do(func() {
		defaultBuilder = NewPromptBuilder()
	})
	return defaultBuilder
}

// Preload parses every embedded template so a broken one fails at startup.
func (pb *PromptBuilder) Preload() error {
	for _, name := range knownTemplates {
		if _, err := pb.getTemplate(name); err != nil {
			return err
		}
	}
	return nil
}

func (pb *PromptBuilder) Render(name TemplateName, data any) (string, error) {
	tmpl, err := pb.getTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}

	return buf.String(), nil
}

// BuildAutofill renders the URL extraction prompt.
func (pb *PromptBuilder) BuildAutofill(data AutofillData) (string, error) {
	return pb.Render(TemplateAutofill, data)
}

// BuildDeepReport renders the executive report prompt.
func (pb *PromptBuilder) BuildDeepReport(data DeepReportData) (string, error) {
	return pb.Render(TemplateDeepReport, data)
}

func (pb *PromptBuilder) getTemplate(name TemplateName) (*template.Template, error) {
	pb.mu.RLock()
	if tmpl, ok := pb.templates[name]; ok {
		pb.mu.RUnlock()
		return tmpl, nil
	}
	pb.mu.RUnlock()

	filename := filepath.ToSlash(filepath.Join("templates", string(name)))
	content, err := templateFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	tmpl, err := template.New(string(name)).Funcs(funcMap).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.templates[name] = tmpl

	return tmpl, nil
}
