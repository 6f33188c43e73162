package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// duration decodes Go duration strings ("72h", "55s") from YAML
// scalars. yaml.v3 cannot unmarshal into time.Duration directly.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a duration string, got %v", value.Tag)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}
