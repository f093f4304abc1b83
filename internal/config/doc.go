// Package config loads the daemon configuration from a YAML or JSON file and
// fills defaults for every section so the zero file starts an in-memory node.
package config
