package store

import "strings"

// Medical field names as they appear in the persisted document.
const (
	FieldConditions  = "conditions"
	FieldMedications = "medications"
	FieldAllergies   = "allergies"
	FieldBloodType   = "blood_type"
)

// Predicate decides whether a medical field value must be encrypted before
// storage. It is pluggable so the heuristic can be replaced without
// touching the store contract.
type Predicate func(field string, values []string) bool

// DefaultPredicate: blood type alone is not sensitive; the list fields are
// sensitive whenever non-empty.
func DefaultPredicate(field string, values []string) bool {
	switch field {
	case FieldBloodType:
		return false
	case FieldConditions, FieldMedications, FieldAllergies:
		return len(values) > 0
	}
	return false
}

// SensitiveConditionKeywords are Spanish medical terms that flag a
// condition list as sensitive under the keyword heuristic.
var SensitiveConditionKeywords = []string{
	"diabetes", "diabetico", "hiv", "vih", "cancer", "mental", "psych",
	"depresion", "bipolar", "esquizofrenia", "alzheimer", "epilepsia",
	"hepatitis", "tuberculosis", "embarazo", "embarazada", "drogas",
	"adiccion", "alcoholismo", "suicidio",
}

// KeywordPredicate builds a predicate that encrypts conditions only when
// one of the given keywords appears; medications and allergies stay
// sensitive whenever non-empty.
func KeywordPredicate(keywords []string) Predicate {
	return func(field string, values []string) bool {
		switch field {
		case FieldBloodType:
			return false
		case FieldMedications, FieldAllergies:
			return len(values) > 0
		case FieldConditions:
			for _, v := range values {
				lower := strings.ToLower(v)
				for _, kw := range keywords {
					if strings.Contains(lower, kw) {
						return true
					}
				}
			}
			return false
		}
		return false
	}
}
