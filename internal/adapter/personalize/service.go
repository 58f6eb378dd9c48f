// Package personalize renders outreach subject/body text from a template
// and a lead data map, grounded on a notification service's
// RenderRequest/RenderResult shape (simplified here: no locale resolution,
// since outreach templates carry no locale).
package personalize

import (
	"context"
	"fmt"
	"strings"
)

const defaultSubjectTemplate = "{{company_name}} × Pipeline"

// RenderRequest is the input to Render: a template body/subject plus the
// lead data substituted into `{{var}}` placeholders.
type RenderRequest struct {
	SubjectTemplate string
	BodyTemplate    string
	Data            map[string]any
	Instructions    string
}

// RenderResult is the rendered outreach message.
type RenderResult struct {
	Subject string
	Body    string
}

// Service renders templates by substituting `{{var}}` placeholders from a
// data map. Unknown placeholders are left literal; substitution never
// fails.
type Service struct {
	rewriter Rewriter
}

// Rewriter optionally rewrites a rendered subject/body for tone or length,
// e.g. a remote-agent rewrite path. A nil Rewriter is a no-op.
type Rewriter interface {
	Rewrite(ctx context.Context, subject, body, instructions string) (string, string, error)
}

// NewService builds a Service. rewriter may be nil to skip the rewrite step.
func NewService(rewriter Rewriter) *Service {
	return &Service{rewriter: rewriter}
}

// Render substitutes `{{var}}` placeholders in req's subject/body templates
// from req.Data, then applies the optional rewrite path. Render never
// returns an error from substitution itself; only a rewrite call can fail,
// in which case the unrewritten render is still usable by the caller.
func (s *Service) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	subjectTemplate := req.SubjectTemplate
	if strings.TrimSpace(subjectTemplate) == "" {
		subjectTemplate = defaultSubjectTemplate
	}

	replacer := newReplacer(req.Data)
	subject := replacer.Replace(subjectTemplate)
	body := replacer.Replace(req.BodyTemplate)

	if s.rewriter == nil || strings.TrimSpace(req.Instructions) == "" {
		return RenderResult{Subject: subject, Body: body}, nil
	}

	rewrittenSubject, rewrittenBody, err := s.rewriter.Rewrite(ctx, subject, body, req.Instructions)
	if err != nil {
		return RenderResult{Subject: subject, Body: body}, fmt.Errorf("op=personalize.rewrite: %w", err)
	}
	return RenderResult{Subject: rewrittenSubject, Body: rewrittenBody}, nil
}

// newReplacer builds a strings.Replacer substituting `{{key}}` for each
// entry in data. Placeholders with no matching key are left literal.
func newReplacer(data map[string]any) *strings.Replacer {
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, fmt.Sprintf("{{%s}}", k), fmt.Sprintf("%v", v))
	}
	return strings.NewReplacer(pairs...)
}
