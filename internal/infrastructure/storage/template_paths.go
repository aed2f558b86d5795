package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"go.uber.org/zap"
)

// DefaultTemplates are used for documents without a configured template.
var DefaultTemplates = map[string]string{
	"unbilled_export": "unbilled/{company}_unbilled_{date}_{timestamp}.txt",
	"audit_workbook":  "workbooks/{company}_invoice_audit_{timestamp}.xlsx",
}

var (
	placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)
	unsafeNameRe  = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
)

// TemplatePaths implements port.DocumentPaths. Templates are slash
// separated relative paths with {name} placeholders.
type TemplatePaths struct {
	templates map[string]string
	constants map[string]string
	logger    *zap.Logger
}

// NewTemplatePaths merges templates over DefaultTemplates. constants are
// placeholder values shared by every document, such as the company name.
func NewTemplatePaths(templates, constants map[string]string, logger *zap.Logger) *TemplatePaths {
	merged := make(map[string]string, len(DefaultTemplates)+len(templates))
	for k, v := range DefaultTemplates {
		merged[k] = v
	}
	for k, v := range templates {
		if strings.TrimSpace(v) != "" {
			merged[k] = v
		}
	}
	consts := make(map[string]string, len(constants))
	for k, v := range constants {
		consts[k] = v
	}
	return &TemplatePaths{
		templates: merged,
		constants: consts,
		logger:    logger,
	}
}

// Resolve expands the template of document. Every substituted value is
// sanitized, so vars can never add directories.
func (p *TemplatePaths) Resolve(document string, vars map[string]string) (string, error) {
	tmpl, ok := p.templates[document]
	if !ok {
		return "", fmt.Errorf("no path template for document %q", document)
	}

	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := vars[key]; ok {
			return p.SanitizeName(v)
		}
		if v, ok := p.constants[key]; ok {
			return p.SanitizeName(v)
		}
		missing = append(missing, key)
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("path template for %q uses unknown placeholders: %s",
			document, strings.Join(missing, ", "))
	}

	cleaned := path.Clean(out)
	if path.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path template for %q escapes the export directory: %s", document, tmpl)
	}

	p.logger.Debug("Resolved document path",
		zap.String("document", document),
		zap.String("path", cleaned))
	return cleaned, nil
}

// SanitizeName returns a filesystem-safe version of the name.
// Spaces become underscores; anything else outside [A-Za-z0-9_-] is dropped.
func (p *TemplatePaths) SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Join(strings.Fields(name), "_")
	return unsafeNameRe.ReplaceAllString(name, "")
}

// Verify interface compliance
var _ port.DocumentPaths = (*TemplatePaths)(nil)
