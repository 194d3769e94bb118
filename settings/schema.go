package settings

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of the config file, for editor validation.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		DoNotReference:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		Mapper:                     durationAsString,
	}
	s := r.Reflect(&Config{})
	s.Title = "autodev configuration"
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationAsString(t reflect.Type) *jsonschema.Schema {
	if t == durationType {
		return &jsonschema.Schema{
			Type:        "string",
			Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
			Description: "Go duration, e.g. 500ms, 30s, 2m",
		}
	}
	return nil
}
