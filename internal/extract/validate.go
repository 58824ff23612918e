package extract

import (
	"fmt"
	"regexp"
)

var sectionPattern = regexp.MustCompile(`^\d{6}$`)

// ValidationError is a rejected vote. Message is sent back to the model as a
// corrective user turn.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks the winning values in order: at most one section, every
// section a six-digit code, both fields lists of strings. It returns the
// decoded lists on success.
func Validate(t Tally, pageNumber int) (sections, parts []string, err error) {
	if list, ok := t.Sections.([]any); ok && len(list) > 1 {
		return nil, nil, &ValidationError{
			Reason: fmt.Sprintf("%d sections returned", len(list)),
			Message: fmt.Sprintf("A page belongs to exactly one section. You returned %d section codes. "+
				"Return at most one six-digit section code for page #%d.", len(list), pageNumber),
		}
	}
	if list, ok := t.Sections.([]any); ok {
		for _, v := range list {
			s, isString := v.(string)
			if !isString || !sectionPattern.MatchString(s) {
				return nil, nil, &ValidationError{
					Reason: fmt.Sprintf("invalid section code %v", v),
					Message: fmt.Sprintf("Section codes must be exactly six digits, but you returned %s. "+
						"Return the six-digit section code for page #%d.", canonical(v), pageNumber),
				}
			}
		}
	}

	sections, okSections := stringList(t.Sections)
	parts, okParts := stringList(t.Parts)
	if !okSections || !okParts {
		return nil, nil, &ValidationError{
			Reason: "sections or parts is not a list of strings",
			Message: fmt.Sprintf("\"sections\" and \"parts\" must both be JSON lists of strings. "+
				"Answer again for page #%d.", pageNumber),
		}
	}
	return sections, parts, nil
}

func stringList(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
