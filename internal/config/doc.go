// Package config holds the configuration record consumed by every stage of
// tlsecho, together with the argument parser that populates it.
//
// Values are merged from three sources, highest precedence first:
//
//  1. Command-line flags
//  2. TLSECHO_* environment variables (dashes become underscores)
//  3. A YAML config file whose keys are flag names
//
// The config file defaults to the OS-appropriate location:
//   - Linux: ~/.config/tlsecho/config.yaml (or $XDG_CONFIG_HOME/tlsecho/config.yaml)
//   - macOS: ~/.config/tlsecho/config.yaml
//   - Windows: %LOCALAPPDATA%\tlsecho\config.yaml
//
// # Example File
//
//	port: "4433"
//	tls: tls13
//	cert: /etc/tlsecho/fullchain.pem
//	key: /etc/tlsecho/privkey.pem
//	max-clients: 64
//	idle-timeout: 2m
//
// Every parse failure is reported as *Error naming the offending field, so the
// caller can report it and exit without touching any socket.
package config
