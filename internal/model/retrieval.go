package model

type SearchHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult holds at most k hits ordered by descending score.
type RetrievalResult struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

// PromptContext is the prompt assembled for one query.
type PromptContext struct {
	Query   string      `json:"query"`
	Hits    []SearchHit `json:"hits"`
	Dropped int         `json:"dropped"`
	Context string      `json:"context"`
	Prompt  string      `json:"prompt"`
}
