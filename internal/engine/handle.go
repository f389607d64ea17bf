package engine

// Token is a vocabulary id as produced by Tokenize and Sample.
type Token int32

// SampleParams are the sampling knobs forwarded to the runtime untouched.
type SampleParams struct {
	Temperature float32
	TopK        int
	TopP        float32
	Seed        int
}

// Handle owns a loaded model and its mutable context/cache.
type Handle interface {
	// Tokenize converts text into model tokens. addBOS prepends the
	// beginning-of-sequence marker.
	Tokenize(text string, addBOS bool) ([]Token, error)
	// Decode feeds tokens into the context at consecutive positions starting
	// at startPos. Logits are produced for the last token only.
	Decode(tokens []Token, startPos int) error
	// Sample picks the next token from the logits of the last decoded position.
	Sample(params SampleParams) (Token, error)
	// IsEOS reports whether tok ends generation.
	IsEOS(tok Token) bool
	// TokenBytes returns the raw piece for tok. A piece may be a fragment of
	// a multi-byte character.
	TokenBytes(tok Token) []byte
	// ContextSize is the maximum number of positions the context can hold.
	ContextSize() int
	// Reset clears the cache so the next prompt starts at position 0.
	Reset() error
	// Close releases the model. The handle is unusable afterwards.
	Close() error
}

// Loader loads a model file into a Handle.
type Loader interface {
	Load(path string) (Handle, error)
}

// Options configure how a model is loaded.
type Options struct {
	ContextSize int
	Threads     int
	GPULayers   int
}

// Defaults applied when Options fields are unset.
const (
	DefaultContextSize = 2048
	DefaultThreads     = 4
)

func (o Options) withDefaults() Options {
	if o.ContextSize <= 0 {
		o.ContextSize = DefaultContextSize
	}
	if o.Threads <= 0 {
		o.Threads = DefaultThreads
	}
	return o
}
