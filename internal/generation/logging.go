package generation

import "github.com/rs/zerolog"

var zlog = zerolog.Nop()

// SetLogger installs the logger used by runners and sessions.
func SetLogger(l zerolog.Logger) { zlog = l }
