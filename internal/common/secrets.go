// Package common holds configuration, logging, and process-level helpers
// shared by every marketcast service.
//
// Config string values may reference secrets with {NAME} placeholders, for
// example:
//
//	[s3]
//	bucket = "{PODCAST_BUCKET}"
//
// Placeholders resolve against the process environment after .env has been
// loaded. Unknown names are left in place and logged.
package common

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

// secretRefPattern matches {NAME} references; names follow environment variable rules
var secretRefPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandSecretString replaces every {NAME} in input with secrets[NAME].
func ExpandSecretString(input string, secrets map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	return secretRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := secrets[name]; ok {
			return value
		}
		if logger != nil {
			logger.Warn().Str("reference", match).Msg("Unresolved config reference")
		}
		return match
	})
}

// ExpandSecretRefs walks a struct pointer and expands {NAME} references in
// string fields, nested structs and string slices in place.
func ExpandSecretRefs(v interface{}, secrets map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("ExpandSecretRefs requires a struct pointer, got %T", v)
	}
	expandStruct(val.Elem(), secrets, logger)
	return nil
}

func expandStruct(val reflect.Value, secrets map[string]string, logger arbor.ILogger) {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			old := field.String()
			if expanded := ExpandSecretString(old, secrets, logger); expanded != old {
				field.SetString(expanded)
				if logger != nil {
					// values are secrets, log the field only
					logger.Debug().Str("field", typ.Field(i).Name).Msg("Expanded config reference")
				}
			}
		case reflect.Struct:
			expandStruct(field, secrets, logger)
		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < field.Len(); j++ {
				elem := field.Index(j)
				elem.SetString(ExpandSecretString(elem.String(), secrets, logger))
			}
		}
	}
}
