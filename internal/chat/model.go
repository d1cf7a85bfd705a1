package chat

import "strings"

// Provider names accepted in the settings document.
//
// | Provider    | Caption | Story | Credential | Default endpoint                              |
// |-------------|---------|-------|------------|-----------------------------------------------|
// | huggingface | yes     | yes   | yes        | https://api-inference.huggingface.co/models   |
// | gemini      | yes     | yes   | yes        | (genai SDK)                                   |
// | llama       | yes     | yes   | no         | http://127.0.0.1:8080                         |
// | openai      | no      | yes   | yes        | https://api.together.xyz/v1                   |
const (
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
	ProviderLlama       = "llama"
	ProviderOpenAI      = "openai"
)

const (
	DefaultHuggingFaceEndpoint = "https://api-inference.huggingface.co/models"
	DefaultTogetherEndpoint    = "https://api.together.xyz/v1"
	DefaultLlamaEndpoint       = "http://127.0.0.1:8080"

	// DefaultGeminiModel is used when the settings document names none.
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Florence-style task directives and the plain-language instruction sent to
// chat models that do not understand the directive tokens.
var taskInstructions = map[string]string{
	"<CAPTION>":               "Describe this image in one short sentence.",
	"<DETAILED_CAPTION>":      "Describe this image in a few sentences.",
	"<MORE_DETAILED_CAPTION>": "Describe this image in detail: the subjects, what they are doing, the setting, colors, and mood.",
}

// TaskInstruction returns the instruction for a task directive. Unknown
// directives are assumed to already be an instruction and pass through.
func TaskInstruction(task string) string {
	if s, ok := taskInstructions[strings.ToUpper(strings.TrimSpace(task))]; ok {
		return s
	}
	return task
}
