// Package configuration provides loading facilities for colabsync's YAML
// configuration file, which controls negotiation timeouts, transfer chunking,
// sharing selection, and logging.
package configuration
