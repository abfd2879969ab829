package llm

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ModeMock selects the mock client.
const ModeMock = "mock"

// NewLLMClient creates an LLM client for the given relay mode.
// Mode "mock" returns a MockClient; anything else returns a real Client.
func NewLLMClient(mode, baseURL, apiKey, model string, timeout time.Duration) LLMClient {
	if strings.EqualFold(mode, ModeMock) {
		log.Info().Msg("relay mode is mock, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, model, timeout)
}
