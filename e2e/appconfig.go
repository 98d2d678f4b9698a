package e2e

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/mailcatch/mailcatch/userconfig"
)

// appConfigOptions is used to fill in a config template with details unique to
// a specific test environment. Keep this as small as possible so the input
// remains as close to a "real" YAML document as we can make it. Also using
// YAML/JSON-compatible types only here.
//
// Fields are exported so we can use them in templates.
type appConfigOptions struct {
	Host      string
	Port      int
	SaveDir   string
	Extension string
	IndexDir  string // an empty value leaves the index section out
}

// createUserConfig renders a configuration YAML doc with the given options
// and runs it through the same parser a real config file would hit.
func createUserConfig(opts appConfigOptions) (*userconfig.Meta, error) {
	configTemplate := `---
server:
    host: {{ .Host }}
    port: "{{ .Port }}"
    maxMessageSize: 25MiB
save:
    dir: {{ .SaveDir }}
    extension: "{{ .Extension }}"
{{- if .IndexDir }}
index:
    storageDir: {{ .IndexDir }}
    keyTTL: "168h"
    cleanupInterval: "10m"
{{- end }}
`

	tmpl, err := template.New("conf").Parse(configTemplate)

	// This means the config template string was written incorrectly. Not
	// an issue with the application itself.
	if err != nil {
		return nil, fmt.Errorf("couldn't parse the application config template: %v", err)
	}

	var config bytes.Buffer

	err = tmpl.Execute(&config, opts)

	// This is an issue with the test environment, not the application
	if err != nil {
		return nil, fmt.Errorf("couldn't populate the application config template: %v", err)
	}

	return userconfig.Parse(&config)
}
