// Package embeddings maps free text to fixed-length semantic vectors.
//
// The Engine loads a local FastEmbed (ONNX) model only after every asset
// listed in the model directory's checksums.json matches its SHA-256 digest.
// When the manifest is missing, a digest differs, or the model cannot be
// loaded, the engine stays up for its whole lifetime on a deterministic
// 16-dimension heuristic vector and records why in Status.FallbackReason.
//
// Engines are constructed explicitly and injected into their callers.
// Concurrent callers are serialized through the engine's request queue; the
// bounded cache keeps the first vector computed for a text and evicts in
// insertion order.
package embeddings
