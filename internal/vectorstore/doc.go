// Package vectorstore stores embedded chunks and answers nearest-neighbour
// queries over them.
//
// Two implementations satisfy Store: ChromemStore, an embedded chromem-go
// database persisted to disk, and QdrantStore, a client for an external
// Qdrant server over gRPC. Both accept only precomputed embeddings and
// reject vectors whose length differs from the configured dimension.
//
// # Usage
//
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
//	    Path:       "./chroma",
//	    VectorSize: 384,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//
//	err = store.Add(ctx, []vectorstore.Record{{
//	    ID:        "notes.txt-0",
//	    Text:      "PageRank ranks pages by inbound links.",
//	    Embedding: vec,
//	    Metadata:  map[string]string{vectorstore.MetadataSource: "notes.txt"},
//	}})
//
//	matches, err := store.Query(ctx, queryVec, 4)
//
// # Identity
//
// Adding a record whose ID already exists replaces the stored record.
// Qdrant point IDs are name-based UUIDs derived from the record ID, so the
// same holds across both backends.
package vectorstore
