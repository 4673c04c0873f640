package config

import _ "embed"

// Default is the embedded baseline configuration.
//
//go:embed conf.yaml
var Default []byte
