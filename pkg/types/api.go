package types

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// LoadModelRequest selects the model to load (POST /models/load). Either a
// registry ID or an explicit file path.
type LoadModelRequest struct {
	Model string `json:"model,omitempty"`
	Path  string `json:"path,omitempty"`
}

// LoadModelResponse acknowledges an asynchronous load.
type LoadModelResponse struct {
	OpID  string `json:"op_id"`
	Model string `json:"model"`
	State string `json:"state"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	Error string `json:"error"`
	// HTTP status code.
	Code int `json:"code"`
}

// SendRequest is the body of POST /chats/{name}/messages.
type SendRequest struct {
	Text string `json:"text"`
}

// TokenLine is one streamed NDJSON fragment.
type TokenLine struct {
	Token string `json:"token"`
}

// Usage reports generation statistics for a finished turn.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Seconds          float64 `json:"seconds"`
	TokensPerSecond  float64 `json:"tokens_per_second"`
}

// FinalLine terminates an NDJSON stream.
type FinalLine struct {
	Done         bool   `json:"done"`
	MessageID    string `json:"message_id"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
	Error        string `json:"error,omitempty"`
}

// ChatsResponse lists stored chats and the active one.
type ChatsResponse struct {
	Chats  []string `json:"chats"`
	Active string   `json:"active"`
}

// SwitchChatRequest is the body of PUT /chats/active.
type SwitchChatRequest struct {
	Name string `json:"name"`
}

// DuplicateResponse names the copy created by POST /chats/{name}/duplicate.
type DuplicateResponse struct {
	Name string `json:"name"`
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Model lifecycle state: unloaded, loading, ready, error.
	State string     `json:"state"`
	Model *ModelInfo `json:"model,omitempty"`
	// Last load error, if any.
	Error string `json:"error,omitempty"`
	// Whether the native llama.cpp runtime is compiled in.
	LlamaBuilt bool `json:"llama_built"`
	// Active chat and whether a turn is running.
	Chat     string `json:"chat"`
	InFlight int    `json:"inflight"`
	// Token budget per turn (prompt plus reply).
	MaxTokens int `json:"max_tokens"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total number of successful model loads.
	LoadsTotal uint64 `json:"loads_total"`
}
