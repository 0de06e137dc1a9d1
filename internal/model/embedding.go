package model

type Embedding struct {
	Model  string    `json:"model"`
	Vector []float32 `json:"vector"`
}

func (e Embedding) Dim() int {
	return len(e.Vector)
}

// IndexEntry is what a vector index stores per chunk.
type IndexEntry struct {
	Chunk     Chunk     `json:"chunk"`
	Embedding Embedding `json:"embedding"`
}

type CollectionInfo struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Dim    int    `json:"dim"`
	Metric string `json:"metric"`
	Count  int    `json:"count"`
}
