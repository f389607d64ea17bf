package manager

import "github.com/rs/zerolog"

var zlog = zerolog.Nop()

// SetLogger installs the logger used by the manager.
func SetLogger(l zerolog.Logger) { zlog = l }
