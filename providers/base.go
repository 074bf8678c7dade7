package providers

// Base provides common fields shared by REST-based provider implementations.
type Base struct {
	name    string
	apiKey  string
	baseURL string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider base URL.
func (b *Base) BaseURL() string { return b.baseURL }

// ModelsFromList builds a ModelInfo slice from a list of model IDs.
func ModelsFromList(providerName string, ids []string) []ModelInfo {
	models := make([]ModelInfo, len(ids))
	for i, id := range ids {
		models[i] = ModelInfo{
			ID:      id,
			Object:  "model",
			OwnedBy: providerName,
		}
	}
	return models
}
