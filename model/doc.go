// Package model defines the generative backend contract consumed by agent
// runtimes plus the generation helpers the message pipeline drives: free-form
// dialogue completions (GenerateMessageResponse) and schema-constrained
// structured output (GenerateObject). Concrete adapters for the OpenAI and
// Anthropic APIs live in the openai and anthropic subpackages; MockModel
// provides deterministic completions for tests and examples.
package model
