package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR}} references in raw YAML with environment
// values before parsing. Go template syntax is used instead of ${VAR}
// expansion so literal dollar signs survive untouched; collector
// settings routinely hold regex patterns and passwords where $ is data,
// not a reference.
//
// Unset variables expand to the empty string and are left for
// validation to reject. Content that fails to parse as a template is
// returned as-is, so plain YAML never breaks.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, environMap()); err != nil {
		return data
	}
	return buf.Bytes()
}

// environMap snapshots the process environment as template data.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}
	return env
}
