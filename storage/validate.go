package storage

import "strings"

var requiredFields = map[string][]string{
	CollectionTasks:      {"title"},
	CollectionCategories: {"Name"},
}

var allowedValues = map[string]map[string][]string{
	CollectionTasks: {"priority": {"high", "medium", "low"}},
}

// validateRecord applies the store side field rules. Required fields must be
// present on create and, when present, non-empty on update.
func validateRecord(collection string, rec Record, creating bool) []FieldError {
	var errs []FieldError
	for _, f := range requiredFields[collection] {
		v, ok := rec[f]
		if !ok && !creating {
			continue
		}
		if s, isStr := v.(string); v == nil || (isStr && strings.TrimSpace(s) == "") {
			errs = append(errs, FieldError{Field: f, Message: "is required"})
		}
	}
	for f, allowed := range allowedValues[collection] {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		s, _ := v.(string)
		if !contains(allowed, s) {
			errs = append(errs, FieldError{Field: f, Message: "must be one of " + strings.Join(allowed, ", ")})
		}
	}
	return errs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
