package questionnaire

import (
	"context"
	"fmt"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/pipeline"
)

// Phase runs questionnaire response validation inside the pipeline. It
// only acts on QuestionnaireResponse resources and resolves the
// referenced Questionnaire through the context's resolver.
type Phase struct{}

// NewPhase creates the questionnaire response phase.
func NewPhase() *Phase {
	return &Phase{}
}

// Name returns the phase name.
func (p *Phase) Name() string {
	return "questionnaire"
}

// Validate resolves the answered Questionnaire and checks the response
// against it. A missing reference is an error; an unresolvable one is
// reported without a verdict.
func (p *Phase) Validate(ctx context.Context, pctx *pipeline.Context) []fv.Issue {
	if pctx.ResourceType != "QuestionnaireResponse" || pctx.Resolver == nil {
		return nil
	}

	canonical, ok := questionnaireRef(pctx)
	if !ok {
		return []fv.Issue{fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
			Diagnostics("QuestionnaireResponse.questionnaire is required").
			At("QuestionnaireResponse.questionnaire").
			Build()}
	}

	url, version := splitCanonical(canonical)
	q, err := pctx.Resolver.FetchQuestionnaire(ctx, url, version)
	if err != nil {
		strict := pctx.Options != nil && pctx.Options.StrictMode
		severity := fv.SeverityWarning
		if strict {
			severity = fv.SeverityError
		}
		return []fv.Issue{fv.NewIssue(severity, fv.IssueTypeNotFound).
			Diagnostics(fmt.Sprintf("questionnaire %s could not be resolved: %v", canonical, err)).
			At("QuestionnaireResponse.questionnaire").
			Build()}
	}
	return Validate(q, pctx.Root)
}

func questionnaireRef(pctx *pipeline.Context) (string, bool) {
	ref, ok := pctx.Root.Get("questionnaire")
	if !ok {
		return "", false
	}
	return ref.AsString()
}

func splitCanonical(canonical string) (string, string) {
	for i := len(canonical) - 1; i >= 0; i-- {
		if canonical[i] == '|' {
			return canonical[:i], canonical[i+1:]
		}
	}
	return canonical, ""
}
