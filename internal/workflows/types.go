package workflows

type MaterialIngestInput struct {
	MaterialID      string `json:"material_id"`
	Path            string `json:"path"`
	Filename        string `json:"filename"`
	FileType        string `json:"file_type"`
	ChunkSize       int    `json:"chunk_size"`
	ChunkOverlap    int    `json:"chunk_overlap"`
	ChunkVersion    string `json:"chunk_version"`
	EmbedVersion    string `json:"embed_version"`
	EmbedProviders  int    `json:"embed_providers"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

type MaterialStatus struct {
	MaterialID  string            `json:"material_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	Providers   []string          `json:"providers_used"`
	RetryCounts map[string]int    `json:"retry_counts"`
	Steps       map[string]string `json:"steps"`
}
