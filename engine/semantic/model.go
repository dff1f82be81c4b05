package semantic

// Neighbor is a single nearest-neighbor hit from the similarity index.
type Neighbor struct {
	ArticleID  int64   `json:"article_id"`
	Similarity float64 `json:"similarity"`
}

// Record is one article vector to store in Qdrant. The payload carries the
// duplicate flag so non-duplicate searches can filter server-side.
type Record struct {
	ArticleID   int64
	Embedding   []float32
	Title       string
	Source      string
	IsDuplicate bool
}
