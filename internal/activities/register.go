package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.ReplaceChunksActivity)
	w.RegisterActivity(a.UpdateMaterialStatusActivity)
	w.RegisterActivity(a.WriteMaterialArtifactsActivity)
}
