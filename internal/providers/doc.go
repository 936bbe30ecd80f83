// Package providers implements the Backend interface for each supported model
// provider.
//
// Supported providers: Anthropic (through the official SDK), OpenAI, Google
// (Gemini), and Ollama / LM Studio for local models.
//
// Backends make exactly one attempt per call. Non-200 answers become typed
// errors (RateLimitError, AuthError, StatusError) and Classify maps any error
// onto the judge failure taxonomy: timeout, rate_limited or transport_error.
// HTTP clients are plain fields so tests can redirect calls to httptest
// servers.
//
// Use [New] to obtain a Backend by provider name and model string, and
// [WithCache] to put the on-disk response cache in front of it.
package providers
