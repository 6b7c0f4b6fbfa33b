package display

import (
	"encoding/json"
	"io"

	"github.com/PatWie/sprout/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WriteStructured encodes v as YAML or JSON.
func WriteStructured(w io.Writer, format Format, v interface{}) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, errors.ErrInternal, "failed to encode yaml")
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, errors.ErrInternal, "failed to encode json")
		}
		return nil
	}
	return errors.Newf(errors.ErrInternal, "format %q is not structured", format)
}
