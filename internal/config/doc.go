// Package config handles configuration loading for docchat.
//
// # Overview
//
// Configuration is read from a YAML or TOML file (chosen by the .toml
// extension) with environment variable expansion. Values absent from the
// file keep their defaults.
//
// # Loading Configuration
//
//	cfg, err := config.LoadOrDefault(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Path checks, in order: $DOCCHAT_CONFIG, $XDG_CONFIG_HOME/docchat/config.yaml,
// ~/.config/docchat/config.yaml. LoadOrDefault returns Default() when the
// file does not exist; Load treats that as an error.
//
// # Environment Variables
//
// Use ${VAR} syntax to reference environment variables:
//
//	api:
//	  username: "${DOCCHAT_USER}"
//	  password: "${DOCCHAT_PASSWORD}"
//
// Unset variables expand to the empty string.
//
// # Configuration Structure
//
//	api:
//	  base_url: "https://chat.example.com/api"
//	  username: "ana"
//	  password: "${DOCCHAT_PASSWORD}"
//	  response_header_timeout: "2m"
//
//	assistant:
//	  system_prompt: "..."
//	  max_chars_per_file: 10000
//	  max_history: 8
//
//	database:
//	  path: "~/.local/share/docchat/docchat.db"
//
//	logging:
//	  level: "info"     # debug, info, warn, error
//	  format: "text"    # text, json
//
//	render:
//	  style: "auto"     # glamour style: auto, dark, light, notty, ...
//	  word_wrap: 80
//
// # Duration Parsing
//
// Duration fields accept Go duration strings ("30s", "1m30s") and are
// stored in a Raw field for unmarshaling, then parsed into the typed field.
//
// # Validation
//
// Validate returns the first problem found: a missing or non-http(s)
// base_url, a password without a username, non-positive
// max_chars_per_file, negative max_history or word_wrap, an empty
// database path, or an unknown logging level or format.
package config
