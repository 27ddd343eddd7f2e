package environ

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/csmcal/wf2wf/pkg/ir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BuildOpts configure environment image builds.
type BuildOpts struct {
	CacheDir     string
	Platform     string // e.g. "linux/amd64"
	Backend      string // "buildx" (default) or "buildah"
	PushRegistry string // push target; empty disables push
	ConfirmPush  bool   // push requires explicit confirmation
	RemoteCache  string // buildx --cache-to/--cache-from ref
	// RequireTools makes missing external tools fatal instead of degrading
	// to stubs.
	RequireTools bool
	// Timeout bounds each external tool invocation.
	Timeout time.Duration
}

func (o *BuildOpts) withDefaults() BuildOpts {
	out := *o
	if out.CacheDir == "" {
		out.CacheDir = CacheDir()
	}
	if out.Platform == "" {
		out.Platform = "linux/amd64"
	}
	if out.Backend == "" {
		out.Backend = "buildx"
	}
	if out.Timeout == 0 {
		out.Timeout = 15 * time.Minute
	}
	return out
}

// BuildResult is the outcome of BuildOrReuse.
type BuildResult struct {
	Tag    string
	Digest string
	Reused bool
}

// BuildOrReuse produces an OCI image for a conda environment YAML, reusing
// the cache when an identical lock file was built before. The pipeline is
// conda-lock → micromamba create → tar → image build → optional push →
// index record. In dry-run mode the whole pipeline is stubbed with
// deterministic tag/digest values derived from the YAML content, so repeat
// invocations return identical results without touching any tool.
func (m *Manager) BuildOrReuse(ctx context.Context, yamlPath string, opts BuildOpts) (*BuildResult, error) {
	o := opts.withDefaults()
	yamlData, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("read environment yaml: %w", err)
	}

	lockHash, lockPath, err := m.lockEnvironment(ctx, yamlPath, yamlData, o)
	if err != nil {
		return nil, err
	}
	tag := fmt.Sprintf("wf2wf/env:%s", lockHash[:12])

	idx := newCacheIndex(o.CacheDir)
	if entry, found, err := idx.Lookup(lockHash); err == nil && found && entry.Digest != "" {
		m.log.Debug("reusing cached environment image",
			zap.String("tag", entry.Tag), zap.String("digest", entry.Digest))
		return &BuildResult{Tag: entry.Tag, Digest: entry.Digest, Reused: true}, nil
	}

	digest, err := m.buildImage(ctx, tag, lockPath, o)
	if err != nil {
		return nil, err
	}

	if o.PushRegistry != "" {
		if !o.ConfirmPush {
			return nil, fmt.Errorf("push to %s requires confirmation (--confirm-push)", o.PushRegistry)
		}
		if err := m.pushImage(ctx, tag, o); err != nil {
			return nil, err
		}
	}

	entry := CacheEntry{Tag: tag, Digest: digest, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := idx.Store(lockHash, entry); err != nil {
		return nil, err
	}
	return &BuildResult{Tag: tag, Digest: digest}, nil
}

// lockEnvironment runs conda-lock and returns the lock content hash and
// lock file path. Dry-run (or a missing conda-lock without RequireTools)
// hashes the YAML itself so the result is still deterministic.
func (m *Manager) lockEnvironment(ctx context.Context, yamlPath string, yamlData []byte, o BuildOpts) (string, string, error) {
	if m.dryRun || !m.exec.LookTool("conda-lock") {
		if !m.dryRun && o.RequireTools {
			return "", "", &ExternalToolError{Tool: "conda-lock", Err: fmt.Errorf("not found")}
		}
		hash := ir.ChecksumBytes(yamlData)
		return hash[len("sha256:"):], yamlPath, nil
	}
	lockPath := filepath.Join(o.CacheDir, "locks", filepath.Base(yamlPath)+".lock.yml")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return "", "", fmt.Errorf("create lock dir: %w", err)
	}
	_, err := m.exec.Run(ctx, o.Timeout, "conda-lock", "lock", "--file", yamlPath, "--lockfile", lockPath, "--platform", platformToConda(o.Platform))
	if err != nil {
		return "", "", fmt.Errorf("conda-lock: %w", err)
	}
	lockData, err := os.ReadFile(lockPath)
	if err != nil {
		return "", "", fmt.Errorf("read lock file: %w", err)
	}
	hash := ir.ChecksumBytes(lockData)
	return hash[len("sha256:"):], lockPath, nil
}

// buildImage stages the environment with micromamba, tars it, and builds an
// OCI image with the configured backend. In dry-run (or when the tools are
// missing and RequireTools is off) a deterministic stub digest derived from
// the tag is returned instead.
func (m *Manager) buildImage(ctx context.Context, tag, lockPath string, o BuildOpts) (string, error) {
	builder := "docker"
	if o.Backend == "buildah" {
		builder = "buildah"
	}
	if m.dryRun || !m.exec.LookTool(builder) || !m.exec.LookTool("micromamba") {
		if !m.dryRun && o.RequireTools {
			return "", &ExternalToolError{Tool: builder, Err: fmt.Errorf("not found")}
		}
		m.log.Debug("stubbing image build", zap.String("tag", tag))
		return ir.ChecksumBytes([]byte("wf2wf-stub-image:" + tag)), nil
	}

	stage, err := os.MkdirTemp(o.CacheDir, "stage-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	prefix := filepath.Join(stage, "env")
	if _, err := m.exec.Run(ctx, o.Timeout, "micromamba", "create", "--yes", "--prefix", prefix, "--file", lockPath); err != nil {
		return "", fmt.Errorf("micromamba create: %w", err)
	}
	tarball := filepath.Join(stage, "env.tar")
	if _, err := m.exec.Run(ctx, o.Timeout, "tar", "-cf", tarball, "-C", stage, "env"); err != nil {
		return "", fmt.Errorf("tar environment: %w", err)
	}
	dockerfile := filepath.Join(stage, "Dockerfile")
	df := "FROM mambaorg/micromamba:latest\nADD env.tar /opt/conda-envs/\nENV PATH=/opt/conda-envs/env/bin:$PATH\n"
	if err := os.WriteFile(dockerfile, []byte(df), 0o644); err != nil {
		return "", fmt.Errorf("write dockerfile: %w", err)
	}

	var args []string
	switch o.Backend {
	case "buildah":
		args = []string{"bud", "--platform", o.Platform, "--tag", tag, stage}
	default:
		args = []string{"buildx", "build", "--platform", o.Platform, "--tag", tag, "--load"}
		if o.RemoteCache != "" {
			args = append(args, "--cache-to", "type=registry,ref="+o.RemoteCache, "--cache-from", "type=registry,ref="+o.RemoteCache)
		}
		args = append(args, stage)
	}
	if _, err := m.exec.Run(ctx, o.Timeout, builder, args...); err != nil {
		return "", fmt.Errorf("image build: %w", err)
	}

	digest, err := m.imageDigest(ctx, builder, tag, o)
	if err != nil {
		return "", err
	}
	return digest, nil
}

func (m *Manager) imageDigest(ctx context.Context, builder, tag string, o BuildOpts) (string, error) {
	inspectTool := builder
	args := []string{"inspect", "--format", "{{.Id}}", tag}
	if builder == "buildah" {
		args = []string{"inspect", "--format", "{{.FromImageID}}", tag}
	}
	res, err := m.exec.Run(ctx, o.Timeout, inspectTool, args...)
	if err != nil {
		// Digestless builds still cache by tag.
		m.log.Warn("could not resolve image digest", zap.String("tag", tag), zap.Error(err))
		return ir.ChecksumBytes([]byte("wf2wf-digestless:" + tag)), nil
	}
	digest := string(res.Stdout)
	digest = trimNewline(digest)
	if digest == "" {
		digest = ir.ChecksumBytes([]byte("wf2wf-digestless:" + tag))
	}
	return digest, nil
}

func (m *Manager) pushImage(ctx context.Context, tag string, o BuildOpts) error {
	target := o.PushRegistry + "/" + tag
	tool := "docker"
	if o.Backend == "buildah" {
		tool = "buildah"
	}
	if m.dryRun || !m.exec.LookTool(tool) {
		if !m.dryRun && o.RequireTools {
			return &ExternalToolError{Tool: tool, Err: fmt.Errorf("not found")}
		}
		m.log.Debug("stubbing image push", zap.String("target", target))
		return nil
	}
	if _, err := m.exec.Run(ctx, o.Timeout, tool, "tag", tag, target); err != nil {
		return fmt.Errorf("tag for push: %w", err)
	}
	if _, err := m.exec.Run(ctx, o.Timeout, tool, "push", target); err != nil {
		return fmt.Errorf("push image: %w", err)
	}
	return nil
}

// BuildAll builds or reuses environments for every environment file
// referenced by the workflow, in parallel with bounded concurrency. Each
// result is stored as the task's shared_filesystem container binding
// ("<tag>@<digest>", source method inferred).
func (m *Manager) BuildAll(ctx context.Context, w *ir.Workflow, sourceDir string, opts BuildOpts) error {
	report := m.Detect(w, "")
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	results := make(map[string]*BuildResult)
	type job struct{ taskID, file string }
	var jobs []job
	for _, id := range w.TaskIDs() {
		te := report.PerTask[id]
		if te.EnvironmentFile == "" {
			continue
		}
		jobs = append(jobs, job{id, te.EnvironmentFile})
	}
	var mu sync.Mutex
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			path := j.file
			if !filepath.IsAbs(path) {
				path = filepath.Join(sourceDir, path)
			}
			res, err := m.BuildOrReuse(ctx, path, opts)
			if err != nil {
				return fmt.Errorf("task %s: %w", j.taskID, err)
			}
			mu.Lock()
			results[j.taskID] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for id, res := range results {
		task := w.Tasks[id]
		task.Container.SetWithMethod(res.Tag+"@"+res.Digest, ir.EnvSharedFilesystem, ir.SourceInferred, 0.9)
	}
	return nil
}

func platformToConda(platform string) string {
	switch platform {
	case "linux/arm64":
		return "linux-aarch64"
	default:
		return "linux-64"
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
