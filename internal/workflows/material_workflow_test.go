package workflows

import (
	"context"
	"errors"
	"testing"

	"studymate/internal/activities"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func TestMaterialIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MaterialIngestWorkflow)
	registerActivityName(env, "UpdateMaterialStatusActivity", func(context.Context, activities.UpdateMaterialStatusInput) error { return nil })
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkTextActivity", func(context.Context, activities.ChunkTextInput) (activities.ChunkTextOutput, error) {
		return activities.ChunkTextOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "ReplaceChunksActivity", func(context.Context, activities.ReplaceChunksInput) error { return nil })
	registerActivityName(env, "WriteMaterialArtifactsActivity", func(context.Context, activities.WriteMaterialArtifactsInput) error { return nil })

	env.OnActivity("UpdateMaterialStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{Path: "/tmp/notes.pdf", Filename: "notes.pdf", FileType: "application/pdf"}).Return(activities.ExtractTextOutput{Text: "photosynthesis notes"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).Return(activities.ChunkTextOutput{Chunks: []activities.ChunkItem{{ChunkID: "c1", MaterialID: "m1", ChunkIndex: 0, Text: "photosynthesis notes"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("ReplaceChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteMaterialArtifactsActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(MaterialIngestWorkflow, MaterialIngestInput{MaterialID: "m1", Path: "/tmp/notes.pdf", Filename: "notes.pdf", FileType: "application/pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "indexed", out)
}

func TestMaterialIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MaterialIngestWorkflow)
	registerActivityName(env, "UpdateMaterialStatusActivity", func(context.Context, activities.UpdateMaterialStatusInput) error { return nil })
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})

	env.OnActivity("UpdateMaterialStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{}, errors.New("no extractable text found in PDF"))

	env.ExecuteWorkflow(MaterialIngestWorkflow, MaterialIngestInput{MaterialID: "m1", Path: "/tmp/scan.pdf", Filename: "scan.pdf", FileType: "application/pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestMaterialIngestWorkflowUnsupportedTypeFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(MaterialIngestWorkflow)
	registerActivityName(env, "UpdateMaterialStatusActivity", func(context.Context, activities.UpdateMaterialStatusInput) error { return nil })
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})

	var statusUpdates []activities.UpdateMaterialStatusInput
	env.OnActivity("UpdateMaterialStatusActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		statusUpdates = append(statusUpdates, args.Get(1).(activities.UpdateMaterialStatusInput))
	}).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).Return(activities.ExtractTextOutput{}, errors.New("unsupported file type: .docx"))

	env.ExecuteWorkflow(MaterialIngestWorkflow, MaterialIngestInput{MaterialID: "m1", Path: "/tmp/notes.docx", Filename: "notes.docx", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	require.NotEmpty(t, statusUpdates)
	last := statusUpdates[len(statusUpdates)-1]
	require.Equal(t, "failed", last.Status)
	require.Equal(t, "unsupported file type", last.FailReason)
}
