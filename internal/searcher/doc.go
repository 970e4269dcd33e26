// Package searcher finds stored business rules by keyword, vector similarity,
// or both.
//
// Hybrid search runs the FTS5 keyword query and the vector query
// concurrently and fuses their rankings with Reciprocal Rank Fusion:
//
//	RRF(d) = sum over lists of 1 / (k + rank(d)),  k = 60
//
// Without an embedder, hybrid search degrades to keyword ranking and vector
// mode returns ErrNoEmbedder.
//
//	s := searcher.NewSearcher(store, emb, logger)
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:       "refund window",
//	    ProjectID:   "shop",
//	    FilePattern: "**/billing/*.py",
//	    UseCache:    true,
//	})
//
// Responses are cached in an LRU keyed by the BLAKE3 hash of the request
// and expire after CacheTTL.
package searcher
