package providers

const (
	volcengineDefaultBase  = "https://ark.cn-beijing.volces.com/api/v3"
	volcengineDefaultModel = "doubao-seed-1-6-250615"
)

// VolcengineProvider is the Volcengine Ark endpoint. It is OpenAI compatible;
// only the defaults differ.
type VolcengineProvider struct {
	*OpenAIProvider
}

func NewVolcengineProvider(apiKey, apiBase, defaultModel string) *VolcengineProvider {
	if apiBase == "" {
		apiBase = volcengineDefaultBase
	}
	if defaultModel == "" {
		defaultModel = volcengineDefaultModel
	}
	return &VolcengineProvider{
		OpenAIProvider: NewOpenAIProvider("volcengine", apiKey, apiBase, defaultModel),
	}
}

// New builds the provider named by kind ("openai" or "volcengine").
func New(kind, apiKey, apiBase, model string, requestsPerMinute int) Provider {
	switch kind {
	case "volcengine", "ark", "doubao":
		p := NewVolcengineProvider(apiKey, apiBase, model)
		p.WithRateLimit(requestsPerMinute)
		return p
	default:
		return NewOpenAIProvider("openai", apiKey, apiBase, model).WithRateLimit(requestsPerMinute)
	}
}
