package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go's
// text/template syntax, {{.VAR}}. Shell-style ${VAR} and $VAR are left
// untouched, so literal dollar signs (regexes, passwords) survive.
//
// Examples:
//   - {{.LLM_URL}} → value of LLM_URL environment variable
//   - {{.CREDIT_URL}}:{{.HTTP_PORT}} → hostname:port with both variables expanded
//
// Missing variables expand to empty string. Validation should catch required fields that are empty.
// If the content is not a valid template, or executing it fails, the
// original data is returned unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
