package vectorstore

// MetadataSource is the metadata key holding a record's source filename.
const MetadataSource = "source"

// Record is one indexed chunk.
type Record struct {
	// ID is the unique identifier, e.g. "notes.txt-3".
	ID string

	// Text is the chunk text.
	Text string

	// Embedding is the chunk vector.
	Embedding []float32

	// Metadata holds string attributes such as the source filename.
	Metadata map[string]string
}

// Match is a record returned by Query.
type Match struct {
	// ID is the record identifier.
	ID string

	// Text is the chunk text.
	Text string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata holds the record metadata.
	Metadata map[string]string
}

// Source returns the source metadata value, or "" when absent.
func (m Match) Source() string {
	return m.Metadata[MetadataSource]
}
