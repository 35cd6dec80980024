package activities

type ExtractTextInput struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
}

type ExtractTextOutput struct {
	Text string `json:"text"`
}

type ChunkTextInput struct {
	MaterialID   string `json:"material_id"`
	Text         string `json:"text"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Version      string `json:"version"`
}

type ChunkItem struct {
	ChunkID    string `json:"chunk_id"`
	MaterialID string `json:"material_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type ChunkTextOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksInput struct {
	Operation     string      `json:"operation"`
	MaterialID    string      `json:"material_id"`
	ProviderIndex int         `json:"provider_index"`
	Chunks        []ChunkItem `json:"chunks"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type ReplaceChunksInput struct {
	MaterialID   string      `json:"material_id"`
	EmbedVersion string      `json:"embed_version"`
	Chunks       []ChunkItem `json:"chunks"`
	Vectors      [][]float32 `json:"vectors"`
}

type UpdateMaterialStatusInput struct {
	MaterialID string `json:"material_id"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}

type WriteMaterialArtifactsInput struct {
	MaterialID string         `json:"material_id"`
	Text       string         `json:"text"`
	Manifest   map[string]any `json:"manifest"`
}
