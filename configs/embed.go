// Package configs provides the embedded configuration template, used by
// `glance config init` to create ~/.config/glance/config.yaml.
package configs

import _ "embed"

// ConfigTemplate is the annotated default configuration file.
//
//go:embed config.example.yaml
var ConfigTemplate string
