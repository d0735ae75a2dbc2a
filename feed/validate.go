package feed

import (
	_ "embed"
	"errors"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/property.json
var propertySchemaJSON string

var propertySchema = jsonschema.MustCompileString("property.json", propertySchemaJSON)

var requiredFields = []string{FieldReference, FieldTitle, FieldPrice, FieldBedroom, FieldBathroom}

var formatMessages = map[string]string{
	FieldPrice:    "must be an integer amount",
	FieldBedroom:  "must be an integer",
	FieldBathroom: "must be an integer",
}

// Validate checks a normalized record and returns one message per problem.
// An empty result means the record can be reconciled.
func Validate(record map[string]string) []string {
	var errs []string

	instance := make(map[string]any, len(record))
	for k, v := range record {
		if strings.TrimSpace(v) != "" {
			instance[k] = v
		}
	}

	for _, f := range requiredFields {
		if _, ok := instance[f]; !ok {
			errs = append(errs, f+" is required")
		}
	}

	err := propertySchema.Validate(instance)
	if err == nil {
		return errs
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return append(errs, err.Error())
	}

	seen := make(map[string]bool)
	var formatErrs []string
	for _, leaf := range leafErrors(verr) {
		field := strings.TrimPrefix(leaf.InstanceLocation, "/")
		msg, ok := formatMessages[field]
		if !ok {
			msg = leaf.Message
		}
		line := field + ": " + msg
		if !seen[line] {
			seen[line] = true
			formatErrs = append(formatErrs, line)
		}
	}
	sort.Strings(formatErrs)

	return append(errs, formatErrs...)
}

func leafErrors(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var leaves []*jsonschema.ValidationError
	for _, c := range e.Causes {
		leaves = append(leaves, leafErrors(c)...)
	}
	return leaves
}
