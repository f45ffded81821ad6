package memory

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateEntity checks an entity before it enters the graph.
func ValidateEntity(e Entity) error {
	var problems []string
	problems = append(problems, structProblems(e)...)
	if e.Name != "" && strings.TrimSpace(e.Name) == "" {
		problems = append(problems, "name: must not be blank")
	}
	for i, a := range e.Aliases {
		if a != "" && strings.TrimSpace(a) == "" {
			problems = append(problems, fmt.Sprintf("aliases[%d]: must not be blank", i))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Kind: "entity", Problems: problems}
	}
	return nil
}

// ValidateFact checks a fact before it enters the lifecycle engine.
func ValidateFact(f Fact) error {
	var problems []string
	problems = append(problems, structProblems(f)...)
	if f.Predicate != "" && strings.TrimSpace(f.Predicate) == "" {
		problems = append(problems, "predicate: must not be blank")
	}
	switch {
	case f.Object.IsZero():
		problems = append(problems, "object: one of object_id or object_value is required")
	case f.Object.IsRelationship():
		if id, _ := f.Object.EntityID(); strings.TrimSpace(id) == "" {
			problems = append(problems, "object_id: must not be blank")
		}
	case f.Object.IsAttribute():
		if v, _ := f.Object.Literal(); strings.TrimSpace(v) == "" {
			problems = append(problems, "object_value: must not be blank")
		}
	}
	if f.ValidUntil != nil && !f.Status.Terminal() {
		problems = append(problems, "valid_until: only allowed on superseded or retracted facts")
	}
	if len(problems) > 0 {
		return &ValidationError{Kind: "fact", Problems: problems}
	}
	return nil
}

func structProblems(v any) []string {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fieldProblem(fe))
	}
	return problems
}

func fieldProblem(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + ": required"
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of [%s]", field, fe.Value(), fe.Param())
	case "gte", "lte":
		if field == "confidence" {
			return fmt.Sprintf("confidence: %v outside [0,1]", fe.Value())
		}
		return fmt.Sprintf("%s: must be %s %s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}

// toSnake converts a Go field name such as "SubjectID" into "subject_id".
func toSnake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
