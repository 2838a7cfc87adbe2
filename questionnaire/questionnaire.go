// Package questionnaire validates QuestionnaireResponse resources
// against the Questionnaire they answer: link identity, answer
// multiplicity, answer value types, and answer option membership.
package questionnaire

import (
	"fmt"
	"strconv"
	"strings"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/service"
	"github.com/reason-healthcare/rh-sub009/value"
	"github.com/reason-healthcare/rh-sub009/walker"
)

const (
	minValueExtension = "http://hl7.org/fhir/StructureDefinition/minValue"
	maxValueExtension = "http://hl7.org/fhir/StructureDefinition/maxValue"
)

// Validate checks a parsed QuestionnaireResponse against its
// Questionnaire definition.
func Validate(q *service.Questionnaire, response *value.Value) []fv.Issue {
	v := &validator{index: map[string]*service.QuestionnaireItem{}}
	v.index = indexItems(q.Item, v.index)

	items, _ := response.Get("item")
	return v.checkScope(q.Item, items, "QuestionnaireResponse.item")
}

type validator struct {
	index map[string]*service.QuestionnaireItem
}

func indexItems(items []service.QuestionnaireItem, into map[string]*service.QuestionnaireItem) map[string]*service.QuestionnaireItem {
	for i := range items {
		into[items[i].LinkID] = &items[i]
		indexItems(items[i].Item, into)
	}
	return into
}

// checkScope validates the response items of one nesting level against
// the questionnaire items defined there.
func (v *validator) checkScope(defs []service.QuestionnaireItem, items *value.Value, path string) []fv.Issue {
	var issues []fv.Issue

	present := map[string]bool{}
	for i, item := range items.Items() {
		itemPath := path + "[" + strconv.Itoa(i) + "]"
		linkID, ok := fieldStr(item, "linkId")
		if !ok {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
				Diagnostics("response item is missing linkId").
				At(itemPath).
				Build())
			continue
		}
		present[linkID] = true

		def, known := v.index[linkID]
		if !known {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeNotFound).
				Diagnostics(fmt.Sprintf("linkId %s does not exist in the questionnaire", linkID)).
				At(itemPath+".linkId").
				Build())
			continue
		}
		issues = append(issues, v.checkItem(def, item, itemPath)...)
	}

	for i := range defs {
		if defs[i].Required && !present[defs[i].LinkID] {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
				Diagnostics(fmt.Sprintf("required item %s has no answer", defs[i].LinkID)).
				At(path).
				Build())
		}
	}
	return issues
}

func (v *validator) checkItem(def *service.QuestionnaireItem, item *value.Value, path string) []fv.Issue {
	var issues []fv.Issue

	answers, _ := item.Get("answer")
	answerItems := answers.Items()

	switch def.Type {
	case "group", "display":
		if len(answerItems) > 0 {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
				Diagnostics(fmt.Sprintf("%s item %s cannot have answers", def.Type, def.LinkID)).
				At(path+".answer").
				Build())
		}
	default:
		if !def.Repeats && len(answerItems) > 1 {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
				Diagnostics(fmt.Sprintf("item %s does not repeat but has %d answers", def.LinkID, len(answerItems))).
				At(path+".answer").
				Build())
		}
		for i, answer := range answerItems {
			answerPath := path + ".answer[" + strconv.Itoa(i) + "]"
			issues = append(issues, v.checkAnswer(def, answer, answerPath)...)
		}
	}

	// Child items nest either under the item (groups) or under each
	// answer.
	if child, ok := item.Get("item"); ok {
		issues = append(issues, v.checkScope(def.Item, child, path+".item")...)
	}
	for i, answer := range answerItems {
		if child, ok := answer.Get("item"); ok {
			answerPath := path + ".answer[" + strconv.Itoa(i) + "].item"
			issues = append(issues, v.checkScope(def.Item, child, answerPath)...)
		}
	}
	return issues
}

func (v *validator) checkAnswer(def *service.QuestionnaireItem, answer *value.Value, path string) []fv.Issue {
	variants := walker.ChoiceVariants(answer, "value")
	if len(variants) == 0 {
		return []fv.Issue{fv.NewIssue(fv.SeverityError, fv.IssueTypeRequired).
			Diagnostics(fmt.Sprintf("answer to %s has no value", def.LinkID)).
			At(path).
			Build()}
	}
	if len(variants) > 1 {
		return []fv.Issue{fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics(fmt.Sprintf("answer to %s has %d values, only one is allowed", def.LinkID, len(variants))).
			At(path).
			Build()}
	}

	cv := variants[0]
	var issues []fv.Issue
	if !typeAllowsVariant(def.Type, cv.TypeName) {
		issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeStructure).
			Diagnostics(fmt.Sprintf("item %s of type %s cannot be answered with %s", def.LinkID, def.Type, cv.Key)).
			At(path+"."+cv.Key).
			Build())
		return issues
	}

	if len(def.AnswerOption) > 0 && def.Type != "open-choice" {
		if !optionMatches(def.AnswerOption, cv) {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeCodeInvalid).
				Diagnostics(fmt.Sprintf("answer to %s is not one of the allowed options", def.LinkID)).
				At(path+"."+cv.Key).
				Build())
		}
	}

	issues = append(issues, checkBounds(def, cv, path)...)
	return issues
}

// answerVariants maps questionnaire item types to the value[x] variants
// they accept.
var answerVariants = map[string][]string{
	"boolean":     {"boolean"},
	"decimal":     {"decimal", "integer"},
	"integer":     {"integer"},
	"date":        {"date"},
	"dateTime":    {"dateTime"},
	"time":        {"time"},
	"string":      {"string"},
	"text":        {"string"},
	"url":         {"uri"},
	"choice":      {"Coding"},
	"open-choice": {"Coding", "string"},
	"attachment":  {"Attachment"},
	"reference":   {"Reference"},
	"quantity":    {"Quantity"},
}

func typeAllowsVariant(itemType, variant string) bool {
	allowed, ok := answerVariants[itemType]
	if !ok {
		return true
	}
	for _, a := range allowed {
		if a == variant {
			return true
		}
	}
	return false
}

func optionMatches(options []service.AnswerOption, cv walker.ChoiceVariant) bool {
	for i := range options {
		opt := &options[i]
		switch cv.TypeName {
		case "Coding":
			if opt.ValueCoding == nil {
				continue
			}
			sys, _ := fieldStr(cv.Value, "system")
			code, _ := fieldStr(cv.Value, "code")
			if opt.ValueCoding.System == sys && opt.ValueCoding.Code == code {
				return true
			}
		case "string":
			if s, ok := cv.Value.AsString(); ok && opt.ValueString != nil && *opt.ValueString == s {
				return true
			}
		case "integer":
			if n, ok := cv.Value.AsInt(); ok && opt.ValueInteger != nil && int64(*opt.ValueInteger) == n {
				return true
			}
		case "date":
			if s, ok := cv.Value.AsString(); ok && opt.ValueDate != nil && *opt.ValueDate == s {
				return true
			}
		}
	}
	return false
}

// checkBounds enforces maxLength on strings and the minValue and
// maxValue extensions on numbers.
func checkBounds(def *service.QuestionnaireItem, cv walker.ChoiceVariant, path string) []fv.Issue {
	var issues []fv.Issue

	if cv.TypeName == "string" && def.MaxLength > 0 {
		if s, ok := cv.Value.AsString(); ok && len([]rune(s)) > def.MaxLength {
			issues = append(issues, fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
				Diagnostics(fmt.Sprintf("answer to %s exceeds maxLength %d", def.LinkID, def.MaxLength)).
				At(path+"."+cv.Key).
				Build())
		}
	}

	n, isNum := answerNumber(cv.Value)
	if !isNum {
		return issues
	}
	for i := range def.Extension {
		ext := &def.Extension[i]
		bound, ok := extensionNumber(ext)
		if !ok {
			continue
		}
		switch ext.URL {
		case minValueExtension:
			if n < bound {
				issues = append(issues, boundIssue(def.LinkID, "below the minimum", bound, path, cv.Key))
			}
		case maxValueExtension:
			if n > bound {
				issues = append(issues, boundIssue(def.LinkID, "above the maximum", bound, path, cv.Key))
			}
		}
	}
	return issues
}

func boundIssue(linkID, direction string, bound float64, path, key string) fv.Issue {
	return fv.NewIssue(fv.SeverityError, fv.IssueTypeValue).
		Diagnostics(fmt.Sprintf("answer to %s is %s of %s", linkID, direction, trimFloat(bound))).
		At(path + "." + key).
		Build()
}

func answerNumber(v *value.Value) (float64, bool) {
	if n, ok := v.AsInt(); ok {
		return float64(n), true
	}
	if d, ok := v.AsDec(); ok {
		f, _ := d.Float64()
		return f, true
	}
	return 0, false
}

func extensionNumber(ext *service.Extension) (float64, bool) {
	if ext.ValueInteger != nil {
		return float64(*ext.ValueInteger), true
	}
	if ext.ValueDecimal != nil {
		return *ext.ValueDecimal, true
	}
	return 0, false
}

func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return strings.TrimSuffix(s, ".0")
}

func fieldStr(v *value.Value, name string) (string, bool) {
	child, ok := v.Get(name)
	if !ok {
		return "", false
	}
	return child.AsString()
}
