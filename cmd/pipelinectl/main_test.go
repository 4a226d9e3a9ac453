package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"captionflow/internal/contextstore"
	"captionflow/internal/media"
	"captionflow/internal/worker"
	"captionflow/internal/worker/stages"
)

type cliTestEnv struct {
	redis      *miniredis.Miniredis
	mediaDir   string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	for _, k := range []string{"REDIS_ADDR", "REDIS_PREFIX", "MEDIA_DIR", "LEDGER_DRIVER", "DATABASE_URL", "CAPTIONFLOW_CONFIG"} {
		t.Setenv(k, "")
	}

	mr := miniredis.RunT(t)
	base := t.TempDir()
	env := &cliTestEnv{
		redis:      mr,
		mediaDir:   filepath.Join(base, "media"),
		configPath: filepath.Join(base, "captionflow.toml"),
	}
	content := fmt.Sprintf(
		"[paths]\nmedia_dir = %q\nmodel_dir = %q\n\n[redis]\naddr = %q\nprefix = \"cf\"\n\n[ledger]\ndriver = \"sqlite\"\ndsn = %q\n\n[storage]\nlocal_root = %q\n",
		env.mediaDir,
		filepath.Join(base, "models"),
		mr.Addr(),
		filepath.Join(base, "ledger.db"),
		filepath.Join(base, "published"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestSubmitRemoteAndQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "submit", "--workflow-id", "wf-1", "--video-url", "https://cdn.example/v.mp4", "--video-ext", ".mp4")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Queued workflow wf-1 on "+stages.TopicCompress)

	out, _, err = runCLI(t, env, "--json", "queue")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	var depths []topicDepth
	if err := json.Unmarshal([]byte(out), &depths); err != nil {
		t.Fatalf("decode queue output: %v", err)
	}
	for _, d := range depths {
		want := int64(0)
		if d.Topic == stages.TopicCompress {
			want = 1
		}
		if d.Pending != want {
			t.Errorf("%s pending = %d, want %d", d.Topic, d.Pending, want)
		}
	}

	out, _, err = runCLI(t, env, "queue")
	if err != nil {
		t.Fatalf("queue table: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Processing")
	requireContains(t, out, stages.TopicPublish)
}

func TestRenderTableKeepsHeaderCase(t *testing.T) {
	out := renderTable([]string{"Topic", "Pending"}, [][]string{{"extract-audio", "3"}}, []columnAlignment{alignLeft, alignRight})
	requireContains(t, out, "Topic")
	requireContains(t, out, "Pending")
	if strings.Contains(out, "PENDING") {
		t.Errorf("headers must not be upper-cased:\n%s", out)
	}
	requireContains(t, out, "extract-audio")
}

func TestSubmitLocalFile(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := filepath.Join(t.TempDir(), "clip.MOV")
	if err := os.WriteFile(clip, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, env, "--json", "submit", "--video-file", clip, "--pipeline", "burn-in")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var res struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Topic != stages.TopicExtractAudio {
		t.Errorf("topic = %s", res.Topic)
	}

	matches, _ := filepath.Glob(filepath.Join(env.mediaDir, "*.mov"))
	if len(matches) != 1 {
		t.Fatalf("expected one imported file, got %v", matches)
	}
}

func TestSubmitRequiresVideo(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "submit", "--pipeline", "publish"); err == nil {
		t.Fatal("expected missing video error")
	}
	if _, _, err := runCLI(t, env, "submit", "--video-url", "https://x/v.mp4"); err == nil {
		t.Fatal("expected missing extension error")
	}
}

func TestWorkflowCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "submit", "--workflow-id", "wf-2", "--video-url", "https://x/v.mp4", "--video-ext", "mp4"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, _, err := runCLI(t, env, "workflow", "wf-2")
	if err != nil {
		t.Fatalf("workflow: %v", err)
	}
	requireContains(t, out, "wf-2")
	requireContains(t, out, "queued")
	requireContains(t, out, "publish")

	out, _, err = runCLI(t, env, "workflows", "--status", "queued")
	if err != nil {
		t.Fatalf("workflows: %v", err)
	}
	requireContains(t, out, "wf-2")

	out, _, err = runCLI(t, env, "workflows", "--status", "failed")
	if err != nil {
		t.Fatalf("workflows failed: %v", err)
	}
	requireContains(t, out, "No workflows")

	if _, _, err := runCLI(t, env, "workflow", "missing"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestContextCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "context", "wf-3")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	requireContains(t, out, "No context recorded")

	if err := env.redis.Set("cf:context:wf-3:"+string(contextstore.KeyExtractAudio), `{"filePath":"/m/a.wav","extensionFile":"wav"}`); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, env, "context", "wf-3")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	requireContains(t, out, "/m/a.wav")
	requireContains(t, out, string(media.FileWAV))
}

func TestReset(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "submit", "--video-url", "https://x/v.mp4", "--video-ext", ".mp4"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, _, err := runCLI(t, env, "reset"); err == nil {
		t.Fatal("reset without --yes must refuse")
	}

	lock, err := worker.AcquireLock(env.mediaDir)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, env, "reset", "--yes"); err == nil {
		t.Fatal("reset must refuse while a worker holds the lock")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, env, "reset", "--yes")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Pipeline state reset")

	out, _, err = runCLI(t, env, "--json", "queue")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, `"pending": 1`) {
		t.Errorf("queue not purged: %s", out)
	}
}
