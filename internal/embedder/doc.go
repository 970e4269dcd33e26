// Package embedder generates optional vector embeddings for business rules
// and code summaries.
//
// Jina and OpenAI are reached through the same OpenAI-compatible /embeddings
// endpoint; the local provider derives deterministic vectors from word hashes
// so vector search still works without network access.
//
//	emb, err := embedder.New(embedder.Config{Provider: "jina", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	if emb == nil {
//	    // embeddings disabled
//	}
//	vecs, err := emb.Embed(ctx, embedder.KindRule, embedder.RuleText(r.Title, r.Description))
//
// Texts are embedded as a Kind: rules and node summaries are indexed passages,
// queries are what search sends. Jina receives the matching retrieval task.
// Remote calls go through retry.Do, so HTTP 429 responses back off the same
// way LLM completions do. Vectors are cached in an LRU keyed by kind, model
// and the BLAKE3 digest of the text; misses are fetched in batches of at most
// MaxBatchSize.
package embedder
