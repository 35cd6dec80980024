package activities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"studymate/internal/config"
	"studymate/internal/extract"
	"studymate/internal/providers"
	"studymate/internal/storage"
	"studymate/internal/util"
)

type Activities struct {
	cfg          config.Config
	materialRepo *storage.MaterialRepo
	chunkRepo    *storage.ChunkRepo
	providers    *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:          cfg,
		materialRepo: storage.NewMaterialRepo(db),
		chunkRepo:    storage.NewChunkRepo(db),
		providers:    pm,
	}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("read material file: %w", err)
	}
	text, err := extract.Text(data, in.Filename, in.FileType)
	if err != nil {
		return ExtractTextOutput{}, err
	}
	return ExtractTextOutput{Text: text}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	if in.ChunkSize <= 0 {
		in.ChunkSize = a.cfg.ChunkSize
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		in.ChunkOverlap = a.cfg.ChunkOverlap
	}
	rawChunks := util.ChunkText(in.Text, in.ChunkSize, in.ChunkOverlap)
	chunks := make([]ChunkItem, 0, len(rawChunks))
	for idx, part := range rawChunks {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		chunkHash := util.SHA256Hex([]byte(part))
		chunkID := util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s:%s", in.MaterialID, idx, chunkHash, in.Version)))
		chunks = append(chunks, ChunkItem{
			ChunkID:    chunkID,
			MaterialID: in.MaterialID,
			ChunkIndex: idx,
			Text:       part,
		})
	}
	return ChunkTextOutput{Chunks: chunks}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	p, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	inputs := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		inputs = append(inputs, c.Text)
	}
	vectors, info, err := p.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    inputs,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed with %s: %w", ref.Raw, err)
	}
	if len(vectors) != len(in.Chunks) {
		return EmbedChunksOutput{}, fmt.Errorf("embed with %s: got %d vectors for %d chunks", ref.Raw, len(vectors), len(in.Chunks))
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: info.Name, Model: info.Model}, nil
}

func (a *Activities) ReplaceChunksActivity(ctx context.Context, in ReplaceChunksInput) error {
	if len(in.Chunks) != len(in.Vectors) {
		return fmt.Errorf("material %s: %d chunks vs %d vectors: %w",
			in.MaterialID, len(in.Chunks), len(in.Vectors), util.ErrDimensionMismatch)
	}
	records := make([]storage.ChunkRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		records = append(records, storage.ChunkRecord{
			ChunkID:      c.ChunkID,
			MaterialID:   c.MaterialID,
			ChunkIndex:   c.ChunkIndex,
			Text:         c.Text,
			EmbedVersion: in.EmbedVersion,
			Embedding:    in.Vectors[i],
		})
	}
	return a.chunkRepo.ReplaceMaterialChunks(ctx, in.MaterialID, records)
}

func (a *Activities) UpdateMaterialStatusActivity(ctx context.Context, in UpdateMaterialStatusInput) error {
	return a.materialRepo.UpdateMaterialStatus(ctx, in.MaterialID, in.Status, in.FailReason)
}

func (a *Activities) WriteMaterialArtifactsActivity(ctx context.Context, in WriteMaterialArtifactsInput) error {
	_ = ctx
	root := filepath.Join(a.cfg.ArtifactsRoot, in.MaterialID)
	if err := util.WriteTextAtomic(filepath.Join(root, "extracted.txt"), in.Text); err != nil {
		return err
	}
	return util.WriteJSONAtomic(filepath.Join(root, "manifest.json"), in.Manifest)
}
