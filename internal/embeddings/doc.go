// Package embeddings turns text into vectors.
//
// Three providers implement Provider: FastEmbed runs ONNX models in process
// (cgo builds only), TEIProvider calls a Text Embeddings Inference server
// and OpenAIProvider calls any OpenAI-compatible embeddings API through
// langchaingo. NewProvider selects one from configuration.
package embeddings
