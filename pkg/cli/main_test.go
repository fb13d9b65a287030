package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nimburion/offlinequeue/pkg/config"
	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/queue"
	"github.com/nimburion/offlinequeue/pkg/server"
)

const testEnvPrefix = "OQCLITEST"

func writeConfig(t *testing.T, online bool) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	onlineValue := "false"
	if online {
		onlineValue = "true"
	}
	content := `
observability:
  log_level: error
queue:
  max_retries: 1
  backoff_base: 1ms
  backoff_ceiling: 1ms
store:
  type: sqlite
  path: ` + filepath.Join(dir, "queue.db") + `
reachability:
  type: manual
  initial_online: ` + onlineValue + `
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, opts Options, args ...string) (string, error) {
	t.Helper()
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = testEnvPrefix
	}
	cmd := NewRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func failingProcessors(cfg *config.Config, log logger.Logger, registry *queue.Registry) error {
	return registry.Register("/todos", queue.ProcessorFunc(func(context.Context, mutation.QueuedRequest) error {
		return errors.New("remote rejected")
	}))
}

func TestQueueCommands_OfflineLifecycle(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, Options{}, "-c", cfgPath, "enqueue", "-t", "update", "-e", "/todos", "-d", `{"id":7}`, "-m", "source=cli")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("expected the new id on stdout")
	}

	out, err = execute(t, Options{}, "-c", cfgPath, "-o", "json", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var views []server.RequestView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode list %q: %v", out, err)
	}
	if len(views) != 1 || views[0].ID != id || views[0].Type != mutation.TypeUpdate || views[0].Metadata["source"] != "cli" {
		t.Fatalf("unexpected list: %+v", views)
	}

	out, err = execute(t, Options{}, "-c", cfgPath, "-o", "json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status mutation.QueueStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Pending != 1 {
		t.Fatalf("expected one pending, got %+v", status)
	}

	out, err = execute(t, Options{}, "-c", cfgPath, "drain")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !strings.Contains(out, "outcome: offline") {
		t.Fatalf("expected offline report in yaml, got:\n%s", out)
	}

	if _, err := execute(t, Options{}, "-c", cfgPath, "remove", "missing"); err == nil {
		t.Fatal("expected error removing an unknown id")
	}
	if _, err := execute(t, Options{}, "-c", cfgPath, "remove", id); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := execute(t, Options{}, "-c", cfgPath, "clear"); err == nil {
		t.Fatal("expected clear to require --yes")
	}
	out, err = execute(t, Options{}, "-c", cfgPath, "clear", "--yes")
	if err != nil || !strings.Contains(out, "cleared 0") {
		t.Fatalf("clear: out=%q err=%v", out, err)
	}
}

func TestQueueCommands_DeadLetterLifecycle(t *testing.T) {
	cfgPath := writeConfig(t, true)
	opts := Options{Processors: []ProcessorRegistrar{failingProcessors}}

	if _, err := execute(t, opts, "-c", cfgPath, "enqueue", "-e", "/todos"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, err := execute(t, opts, "-c", cfgPath, "-o", "json", "dlq", "list")
	if err != nil {
		t.Fatalf("dlq list: %v", err)
	}
	var items []server.DeadLetterView
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode dlq %q: %v", out, err)
	}
	if len(items) != 1 || !strings.Contains(items[0].LastError, "remote rejected") {
		t.Fatalf("expected one dead-lettered request, got %+v", items)
	}
	id := items[0].Request.ID

	if _, err := execute(t, opts, "-c", cfgPath, "dlq", "retry", "missing"); err == nil {
		t.Fatal("expected error retrying an unknown id")
	}
	if _, err := execute(t, opts, "-c", cfgPath, "dlq", "retry", id); err != nil {
		t.Fatalf("dlq retry: %v", err)
	}

	if _, err := execute(t, opts, "-c", cfgPath, "dlq", "remove", id); err != nil {
		t.Fatalf("dlq remove: %v", err)
	}
	if _, err := execute(t, opts, "-c", cfgPath, "dlq", "clear"); err == nil {
		t.Fatal("expected dlq clear to require --yes")
	}
	if _, err := execute(t, opts, "-c", cfgPath, "dlq", "clear", "-y"); err != nil {
		t.Fatalf("dlq clear: %v", err)
	}
}

func TestHealthcheckCommand(t *testing.T) {
	cfgPath := writeConfig(t, false)

	out, err := execute(t, Options{}, "-c", cfgPath, "healthcheck")
	if err != nil {
		t.Fatalf("healthcheck: %v", err)
	}
	for _, want := range []string{"name: store", "name: connectivity", "name: offline-queue"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestConfigCommands(t *testing.T) {
	cfgPath := writeConfig(t, false)
	secrets := filepath.Join(filepath.Dir(cfgPath), "secrets.yaml")
	if err := os.WriteFile(secrets, []byte("remote:\n  headers:\n    authorization: Bearer hunter2\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	if out, err := execute(t, Options{}, "-c", cfgPath, "config", "validate"); err != nil || !strings.Contains(out, "valid") {
		t.Fatalf("validate: out=%q err=%v", out, err)
	}

	out, err := execute(t, Options{}, "-c", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("config show leaks secrets:\n%s", out)
	}

	out, err = execute(t, Options{}, "-c", cfgPath, "config", "show", "--show-secrets")
	if err != nil || !strings.Contains(out, "hunter2") {
		t.Fatalf("expected raw secrets with --show-secrets, err=%v", err)
	}
}

func TestConfigValidate_FlagOverrideIsValidated(t *testing.T) {
	cfgPath := writeConfig(t, false)
	if _, err := execute(t, Options{}, "-c", cfgPath, "--store-type", "etcd", "config", "validate"); err == nil {
		t.Fatal("expected validation failure for an unknown store type")
	}
}

func TestSecretFileFlag_MustExist(t *testing.T) {
	cfgPath := writeConfig(t, false)
	_, err := execute(t, Options{}, "-c", cfgPath, "--secret-file", filepath.Join(t.TempDir(), "nope.yaml"), "status")
	if err == nil || !strings.Contains(err.Error(), "not accessible") {
		t.Fatalf("expected inaccessible secret file error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, Options{Name: "offlinequeue"}, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Service:    offlinequeue") {
		t.Fatalf("unexpected version output:\n%s", out)
	}

	out, err = execute(t, Options{Name: "offlinequeue"}, "-o", "json", "version")
	if err != nil || !strings.Contains(out, `"service": "offlinequeue"`) {
		t.Fatalf("unexpected json version output %q, err=%v", out, err)
	}
}

func TestEnqueueCommand_Validation(t *testing.T) {
	cfgPath := writeConfig(t, false)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing endpoint", args: []string{"enqueue"}},
		{name: "bad type", args: []string{"enqueue", "-t", "upsert", "-e", "/todos"}},
		{name: "bad json", args: []string{"enqueue", "-e", "/todos", "-d", "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, Options{}, append([]string{"-c", cfgPath}, tt.args...)...); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestPrint_UnsupportedFormat(t *testing.T) {
	st := &rootState{output: "xml"}
	if err := st.print(&bytes.Buffer{}, map[string]int{"a": 1}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

type scriptedDrainer struct {
	reports []queue.DrainReport
	lengths []int
	calls   int
}

func (d *scriptedDrainer) ProcessQueue(context.Context) queue.DrainReport {
	r := d.reports[d.calls]
	d.calls++
	return r
}

func (d *scriptedDrainer) QueueLength() int {
	return d.lengths[d.calls-1]
}

func TestDrain(t *testing.T) {
	completed := queue.DrainReport{Outcome: queue.OutcomeCompleted, Attempted: 1}

	tests := []struct {
		name       string
		untilEmpty bool
		maxPasses  int
		reports    []queue.DrainReport
		lengths    []int
		wantPasses int
	}{
		{name: "single pass", maxPasses: 10, reports: []queue.DrainReport{completed}, lengths: []int{3}, wantPasses: 1},
		{name: "until empty", untilEmpty: true, maxPasses: 10, reports: []queue.DrainReport{completed, completed, completed}, lengths: []int{2, 1, 0}, wantPasses: 3},
		{name: "stops when offline", untilEmpty: true, maxPasses: 10, reports: []queue.DrainReport{completed, {Outcome: queue.OutcomeOffline}}, lengths: []int{2, 2}, wantPasses: 2},
		{name: "bounded", untilEmpty: true, maxPasses: 2, reports: []queue.DrainReport{completed, completed}, lengths: []int{5, 5}, wantPasses: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &scriptedDrainer{reports: tt.reports, lengths: tt.lengths}
			reports := Drain(context.Background(), d, tt.untilEmpty, tt.maxPasses)
			if len(reports) != tt.wantPasses || d.calls != tt.wantPasses {
				t.Fatalf("expected %d passes, got %d reports and %d calls", tt.wantPasses, len(reports), d.calls)
			}
		})
	}
}
