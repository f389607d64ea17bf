package engine

// LlamaBuilt reports whether the binary links the native llama runtime.
func LlamaBuilt() bool { return llamaBuilt }
