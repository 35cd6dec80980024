package workflows

import (
	"fmt"
	"strings"
	"time"

	"studymate/internal/activities"
	"studymate/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetMaterialStatus = "GetMaterialStatus"

type providerState struct {
	disabledUntil map[int]time.Time
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}}
}

func MaterialIngestWorkflow(ctx workflow.Context, input MaterialIngestInput) (string, error) {
	status := MaterialStatus{
		MaterialID:  input.MaterialID,
		CurrentStep: "init",
		Status:      "processing",
		RetryCounts: map[string]int{},
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetMaterialStatus, func() (MaterialStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	providerCount := input.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	state := newProviderState()

	_ = workflow.ExecuteActivity(ctx, "UpdateMaterialStatusActivity", activities.UpdateMaterialStatusInput{MaterialID: input.MaterialID, Status: "processing"}).Get(ctx, nil)

	status.CurrentStep = "extract_text"
	status.Steps[status.CurrentStep] = "processing"
	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{Path: input.Path, Filename: input.Filename, FileType: input.FileType}).Get(ctx, &textOut); err != nil {
		if isNoTextError(err) || isUnsupportedTypeError(err) {
			status.Status = "failed"
			status.FailReason = failReasonFor(err)
			status.Steps[status.CurrentStep] = "failed"
			_ = workflow.ExecuteActivity(ctx, "UpdateMaterialStatusActivity", activities.UpdateMaterialStatusInput{MaterialID: input.MaterialID, Status: "failed", FailReason: status.FailReason}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_text"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{
		MaterialID:   input.MaterialID,
		Text:         textOut.Text,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
		Version:      defaultChunkVersion(input.ChunkVersion),
	}).Get(ctx, &chunkOut); err != nil {
		return "", err
	}
	if len(chunkOut.Chunks) == 0 {
		status.Status = "failed"
		status.FailReason = "no extractable text found after sanitization"
		status.Steps[status.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "UpdateMaterialStatusActivity", activities.UpdateMaterialStatusInput{MaterialID: input.MaterialID, Status: "failed", FailReason: status.FailReason}).Get(ctx, nil)
		return status.Status, nil
	}
	status.ChunkCount = len(chunkOut.Chunks)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksInput{
		Operation:  "embed",
		MaterialID: input.MaterialID,
		Chunks:     chunkOut.Chunks,
	}, status.RetryCounts)
	if err != nil {
		return "", err
	}
	status.Providers = append(status.Providers, embedOut.ProviderName)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "replace_chunks"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "ReplaceChunksActivity", activities.ReplaceChunksInput{
		MaterialID:   input.MaterialID,
		EmbedVersion: defaultEmbedVersion(input.EmbedVersion),
		Chunks:       chunkOut.Chunks,
		Vectors:      embedOut.Vectors,
	}).Get(ctx, nil); err != nil {
		if isInvalidTextEncodingError(err) {
			status.Status = "failed"
			status.FailReason = "material contains invalid text encoding after extraction"
			status.Steps[status.CurrentStep] = "failed"
			_ = workflow.ExecuteActivity(ctx, "UpdateMaterialStatusActivity", activities.UpdateMaterialStatusInput{MaterialID: input.MaterialID, Status: "failed", FailReason: status.FailReason}).Get(ctx, nil)
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "write_artifacts"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "WriteMaterialArtifactsActivity", activities.WriteMaterialArtifactsInput{
		MaterialID: input.MaterialID,
		Text:       textOut.Text,
		Manifest: map[string]any{
			"material_id":   input.MaterialID,
			"filename":      input.Filename,
			"chunk_count":   len(chunkOut.Chunks),
			"chunk_version": defaultChunkVersion(input.ChunkVersion),
			"embed_version": defaultEmbedVersion(input.EmbedVersion),
			"provider":      embedOut.ProviderName,
			"model":         embedOut.Model,
			"generated_at":  workflow.Now(ctx),
		},
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_indexed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdateMaterialStatusActivity", activities.UpdateMaterialStatusInput{MaterialID: input.MaterialID, Status: "indexed"}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "indexed"
	return status.Status, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput, retryCounts map[string]int) (activities.EmbedChunksOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	maxAttempts := providerCount * 4
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch providers.ClassifyError(err) {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedChunksOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func defaultChunkVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "v1"
	}
	return v
}

func defaultEmbedVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "v0"
	}
	return v
}

func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

func isUnsupportedTypeError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unsupported file type")
}

func isInvalidTextEncodingError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "invalid byte sequence") || strings.Contains(e, "sqlstate 22021")
}

func failReasonFor(err error) string {
	if isUnsupportedTypeError(err) {
		return "unsupported file type"
	}
	return "no extractable text found (OCR not enabled)"
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
