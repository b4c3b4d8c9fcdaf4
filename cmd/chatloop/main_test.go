package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatloop/internal/agent"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
	"github.com/fyrsmithlabs/chatloop/internal/memory"
)

// setupEnv isolates HOME so the default config, store and failure index
// live in a temp dir, and points the model cache at an empty directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	home, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Setenv("HOME", home)
	t.Setenv("EMBEDDINGS_CACHE_DIR", filepath.Join(home, "models"))
	t.Setenv("LOGGING_LEVEL", "error")
	return home
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

const chatRequest = `{
  "host": "chat.example.com",
  "domainFingerprint": "layout-v3",
  "requireModel": false,
  "candidatesFeatures": [
    {"selector": ".msg", "type": "USER_TURN", "confidence": 0.9, "text": "How do I parse JSON in Go?",
     "bbox": {"top": 100, "left": 200, "width": 800, "height": 60}},
    {"selector": ".msg", "type": "MODEL_TURN", "confidence": 0.8, "text": "Use encoding/json and json.Unmarshal.",
     "bbox": {"top": 200, "left": 200, "width": 800, "height": 120}},
    {"selector": ".msg", "type": "CODE_BLOCK", "confidence": 0.7, "text": "func main() { json.Unmarshal(data, &v) }",
     "bbox": {"top": 340, "left": 220, "width": 760, "height": 80}}
  ]
}`

func TestRunCmd_FallbackVectors(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, chatRequest, "run", "--memory", "-")
	require.NoError(t, err)

	var resp agent.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, agent.ModeLoop, resp.Mode)
	require.NotNil(t, resp.BestExtraction)
	require.NotNil(t, resp.Trace)
	assert.False(t, resp.Trace.Embedding.ModelLoaded)
	assert.Equal(t, embeddings.FallbackModelName, resp.Trace.Embedding.Model)
	assert.NotEmpty(t, resp.Trace.Attempts)
	require.NotNil(t, resp.PersistedUpdates)
	assert.True(t, resp.PersistedUpdates.LearnerSaved)
}

func TestRunCmd_ModelGate(t *testing.T) {
	setupEnv(t)

	req := strings.Replace(chatRequest, `"requireModel": false,`, "", 1)
	out, err := execute(t, req, "run", "--memory", "--compact")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1, "compact output is one line")

	var resp agent.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, agent.ModeModelUnavailable, resp.Mode)
	assert.NotEmpty(t, resp.Error)
	assert.Nil(t, resp.BestExtraction)
	assert.Nil(t, resp.PersistedUpdates)
}

func TestRunCmd_FromFile(t *testing.T) {
	home := setupEnv(t)
	path := filepath.Join(home, "request.json")
	require.NoError(t, os.WriteFile(path, []byte(chatRequest), 0o600))

	out, err := execute(t, "", "run", "--memory", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)
}

func TestRunCmd_InvalidRequest(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, `{"domainFingerprint": "fp"}`, "run", "--memory")
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrInvalidRequest)

	_, err = execute(t, `{"host":`, "run", "--memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding request")

	_, err = execute(t, "", "run", "--memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no request on stdin")
}

func TestRunCmd_PersistsToSQLite(t *testing.T) {
	home := setupEnv(t)

	// No candidates: the run fails verification and records a failure case.
	empty := `{"host": "chat.example.com", "domainFingerprint": "layout-v3", "requireModel": false, "candidatesFeatures": []}`
	out, err := execute(t, empty, "run")
	require.NoError(t, err)

	var resp agent.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.PersistedUpdates)
	assert.True(t, resp.PersistedUpdates.FailureSaved)
	assert.FileExists(t, filepath.Join(home, ".config", "chatloop", "memory.db"))

	out, err = execute(t, "", "failures", "list", "--host", "chat.example.com", "--fingerprint", "layout-v3")
	require.NoError(t, err)

	var cases []memory.FailureCase
	require.NoError(t, json.Unmarshal([]byte(out), &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, resp.Trace.RunID, cases[0].RunID)

	// A second run sees the first run's score as its prior.
	out, err = execute(t, chatRequest, "run")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.InDelta(t, 0.30, resp.Trace.Learned.PriorScore, 1e-9)
}

func TestFailuresCmd_RejectsMemory(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "failures", "similar", "--memory", "duplicate messages")
	require.Error(t, err)

	_, err = execute(t, "", "failures", "list", "--memory", "--host", "a", "--fingerprint", "b")
	require.Error(t, err)
}

func TestModelVerifyCmd(t *testing.T) {
	home := setupEnv(t)

	_, err := execute(t, "", "model", "verify")
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddings.ErrManifestMissing)

	dir := filepath.Join(home, "models", "fast-bge-small-en-v1.5")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("onnx"), 0o600))
	manifest := `{"model": "BAAI/bge-small-en-v1.5", "files": {"model.onnx": "` + sha256Hex("onnx") + `"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, embeddings.ManifestFile), []byte(manifest), 0o600))

	out, err := execute(t, "", "model", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "1 files verified")
	assert.Contains(t, out, "ok  model.onnx")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("tampered"), 0o600))
	_, err = execute(t, "", "model", "verify")
	assert.ErrorIs(t, err, embeddings.ErrChecksumMismatch)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatloop by Fyrsmith Labs")
	assert.Contains(t, out, "Version:    dev")
}
