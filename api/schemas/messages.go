// File: api/schemas/messages.go
package schemas

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem MessageRole = "system"
	RoleUser   MessageRole = "user"
	RoleModel  MessageRole = "model"
)

// Part is one fragment of a multimodal message: either text or an inline
// compressed image. Exactly one field is set.
type Part struct {
	Text string `json:"text,omitempty"`
	// ImageJPEG holds JPEG-encoded bytes. Dropped (set to nil) by history
	// pruning on turns that fall out of the retained image window.
	ImageJPEG []byte `json:"image_jpeg,omitempty"`
	// ImagePruned marks a part whose image bytes were removed by pruning,
	// so re-pruning an already-pruned history is a no-op.
	ImagePruned bool `json:"image_pruned,omitempty"`
}

// Message is one entry of the ordered multi-turn history sent to the model.
type Message struct {
	Role  MessageRole `json:"role"`
	Parts []Part      `json:"parts"`
}

// TextPart builds a text-only message part.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart builds an inline-JPEG message part.
func ImagePart(jpeg []byte) Part { return Part{ImageJPEG: jpeg} }

// Usage reports token counts and cost for one LLM call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Add accumulates another call's usage into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.CostUSD += other.CostUSD
}

// StepResult is the LLM collaborator's return value for one step: the parsed
// structured response plus the usage the provider reported for the call.
type StepResult struct {
	Response StepResponse `json:"response"`
	Usage    Usage        `json:"usage"`
}
