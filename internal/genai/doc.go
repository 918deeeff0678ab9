// Package genai provides the Generation Gateway: a typed accessor to the
// external content-generation service, implemented over an eino chat model
// with timeout and retry applied to every call.
package genai
