package llms

// StructuredPromptOptions configures a prompt whose answer must follow a
// JSON schema.
type StructuredPromptOptions struct {
	Instructions string
	Messages     []Message
	Temperature  *float64
}

type StructuredPromptOption func(*StructuredPromptOptions)

// WithSystemPrompt sets the instructions of the prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) StructuredPromptOption {
	return func(opts *StructuredPromptOptions) {
		opts.Instructions = prompt
	}
}

// WithMessages adds conversation history before the prompt.
// Repeating this option will sequentially add more messages.
func WithMessages(messages ...Message) StructuredPromptOption {
	return func(opts *StructuredPromptOptions) {
		opts.Messages = append(opts.Messages, messages...)
	}
}

func WithTemperature(temperature float64) StructuredPromptOption {
	return func(opts *StructuredPromptOptions) {
		opts.Temperature = &temperature
	}
}

func NewStructuredPromptOptions(opts ...StructuredPromptOption) StructuredPromptOptions {
	var options StructuredPromptOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
