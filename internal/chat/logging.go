package chat

import "github.com/rs/zerolog"

var zlog = zerolog.Nop()

// SetLogger installs the logger used by orchestrators.
func SetLogger(l zerolog.Logger) { zlog = l }
