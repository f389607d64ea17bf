package types

import "time"

// Model is a GGUF file found in the models directory or named by path.
type Model struct {
	// ID is the file name, e.g. tinyllama-1.1b-chat.Q4_K_M.gguf.
	ID string `json:"id"`
	// Name is the file name without its extension.
	Name string `json:"name"`
	Path string `json:"path"`
	// Quant is the quantization tag guessed from the file name (Q4_K_M, F16).
	Quant     string    `json:"quant,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	Modified  time.Time `json:"modified,omitzero"`
}
