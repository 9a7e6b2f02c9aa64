// Package provider wraps the Eino chat models the agents run on.
//
// # Supported Providers
//
//   - anthropic: Claude through the Anthropic API or AWS Bedrock
//     (eino-ext claude)
//   - openai: OpenAI and OpenAI-compatible endpoints, including Azure
//     (eino-ext openai)
//   - ark: Volcengine ARK endpoints (eino-ext ark)
//
// Each Provider exposes the model.ToolCallingChatModel it was built with.
// The agent runner binds tool definitions per request with WithTools and
// streams responses with Stream.
//
// # Selection
//
// InitializeProviders registers every provider that has an API key. The
// configured model string has the form "provider/model"; Registry.Default
// returns the provider it names, or the first available provider in the
// order anthropic, openai, ark.
//
// Credentials fall back to ANTHROPIC_API_KEY, OPENAI_API_KEY and
// ARK_API_KEY. ARK additionally reads ARK_MODEL_ID and ARK_BASE_URL.
package provider
