package backend

import "time"

// Message is one stateless request to a model.
type Message struct {
	Content     string
	System      string  // Overrides the configured system prompt when set
	Temperature float64 // Zero leaves the provider default
}

// Response is a model reply.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Config defines one provider.
type Config struct {
	Type         string // "ollama", "claude" or "command"
	Name         string // Provider name used for breakers and logs; defaults to Type
	Model        string
	BaseURL      string   // ollama
	Command      string   // command
	Args         []string // command; "{prompt}" and "{model}" are substituted
	WorkDir      string
	SystemPrompt string
	Timeout      time.Duration // Per call; zero means no extra deadline
}

func (c Config) name() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}
