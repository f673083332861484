package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

const (
	managedLabel = "sentinel.judge.managed"
	sessionLabel = "sentinel.judge.session"

	teardownTimeout = 10 * time.Second
	pidsLimit       = int64(64)
)

// ContainerAPI is the subset of the Docker Engine client used by the runner.
// *client.Client satisfies it.
type ContainerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// DockerRunner runs each request in a fresh, network-less container.
type DockerRunner struct {
	api      ContainerAPI
	registry *Registry
	logger   *zap.Logger

	// active holds the ids of containers owned by an in-flight Run.
	active sync.Map
}

var _ Runner = (*DockerRunner)(nil)

// NewDockerRunner creates a runner backed by the Docker Engine API.
func NewDockerRunner(api ContainerAPI, registry *Registry, logger *zap.Logger) *DockerRunner {
	return &DockerRunner{api: api, registry: registry, logger: logger}
}

// session tracks one container and guarantees it is destroyed once.
type session struct {
	id   string
	once sync.Once
}

// Run executes req in a new container and races its exit against the time limit.
func (r *DockerRunner) Run(ctx context.Context, req Request) (*Result, error) {
	profile, err := r.registry.Lookup(req.Language)
	if err != nil {
		return nil, err
	}
	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = profile.TimeLimit
	}
	memory := req.MemoryLimitBytes
	if memory <= 0 {
		memory = profile.MemoryLimitBytes
	}

	archive, err := buildArchive(profile.SourceFile, req.SourceCode, req.Stdin)
	if err != nil {
		return nil, fmt.Errorf("sandbox: build archive: %w", err)
	}

	created, err := r.api.ContainerCreate(ctx,
		&container.Config{
			Image:           profile.Image,
			Cmd:             profile.Command,
			WorkingDir:      workingDir,
			NetworkDisabled: true,
			Labels: map[string]string{
				managedLabel: "true",
				sessionLabel: req.SessionID,
			},
		},
		&container.HostConfig{
			NetworkMode: "none",
			CapDrop:     []string{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:     memory,
				MemorySwap: memory,
				PidsLimit:  ptr(pidsLimit),
				Ulimits: []*units.Ulimit{
					{Name: "nproc", Soft: 64, Hard: 128},
					{Name: "nofile", Soft: 64, Hard: 128},
					{Name: "core", Soft: 0, Hard: 0},
					{Name: "fsize", Soft: 20 * 1024 * 1024, Hard: 20 * 1024 * 1024},
				},
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}

	s := &session{id: created.ID}
	r.active.Store(s.id, struct{}{})
	defer r.destroy(ctx, s)

	log := r.logger.With(
		zap.String("session_id", req.SessionID),
		zap.String("container_id", shortID(s.id)),
	)

	if err := r.api.CopyToContainer(ctx, s.id, "/", archive, container.CopyToContainerOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: copy files: %w", err)
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	statusCh, errCh := r.api.ContainerWait(waitCtx, s.id, container.WaitConditionNextExit)

	start := time.Now()
	if err := r.api.ContainerStart(ctx, s.id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	timer := time.NewTimer(timeLimit)
	defer timer.Stop()

	result := &Result{}
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("sandbox: wait: %s", status.Error.Message)
		}
		result.ExitCode = int(status.StatusCode)
		result.Outcome = OutcomeSuccess
		if status.StatusCode != 0 {
			result.Outcome = OutcomeFailed
		}
	case err := <-errCh:
		if ctx.Err() != nil {
			r.kill(ctx, s, log)
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sandbox: wait: %w", err)
	case <-timer.C:
		r.kill(ctx, s, log)
		result.Outcome = OutcomeTimeLimitExceeded
		result.ExitCode = -1
	case <-ctx.Done():
		r.kill(ctx, s, log)
		return nil, ctx.Err()
	}
	result.Duration = time.Since(start)

	output, err := r.collectOutput(ctx, s.id)
	if err != nil {
		if result.Outcome != OutcomeTimeLimitExceeded {
			return nil, fmt.Errorf("sandbox: read logs: %w", err)
		}
		log.Warn("failed to read logs after timeout", zap.Error(err))
	}
	result.Output = Sanitize(output)

	log.Debug("container run completed",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (r *DockerRunner) kill(ctx context.Context, s *session, log *zap.Logger) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := r.api.ContainerKill(killCtx, s.id, "SIGKILL"); err != nil {
		log.Warn("failed to kill container", zap.Error(err))
	}
}

func (r *DockerRunner) destroy(ctx context.Context, s *session) {
	s.once.Do(func() {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		if err := r.api.ContainerRemove(rmCtx, s.id, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("failed to remove container",
				zap.String("container_id", shortID(s.id)),
				zap.Error(err),
			)
		}
		r.active.Delete(s.id)
	})
}

func (r *DockerRunner) collectOutput(ctx context.Context, id string) (string, error) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	rc, err := r.api.ContainerLogs(logCtx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	out := newLimitedBuffer(maxOutputBytes)
	if _, err := stdcopy.StdCopy(out, out, rc); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}

// EnsureImages pulls every image in the registry.
func (r *DockerRunner) EnsureImages(ctx context.Context) error {
	for _, ref := range r.registry.Images() {
		r.logger.Info("pulling sandbox image", zap.String("image", ref))
		rc, err := r.api.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("sandbox: pull %s: %w", ref, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("sandbox: pull %s: %w", ref, err)
		}
	}
	return nil
}

// Reap removes exited containers left behind by this service and returns
// how many were removed. Containers still owned by a Run in this process are
// skipped, as are containers younger than the longest run could last, since
// they may belong to a live Run in another worker.
func (r *DockerRunner) Reap(ctx context.Context) (int, error) {
	containers, err := r.api.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("status", "exited"),
			filters.Arg("status", "dead"),
			filters.Arg("label", managedLabel+"=true"),
		),
	})
	if err != nil {
		return 0, fmt.Errorf("sandbox: list containers: %w", err)
	}

	cutoff := time.Now().Add(-r.reapGrace())
	removed := 0
	for _, ctr := range containers {
		if _, live := r.active.Load(ctr.ID); live {
			continue
		}
		if time.Unix(ctr.Created, 0).After(cutoff) {
			continue
		}
		if err := r.api.ContainerRemove(ctx, ctr.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("failed to remove zombie container",
				zap.String("container_id", shortID(ctr.ID)),
				zap.Error(err),
			)
			continue
		}
		removed++
	}
	return removed, nil
}

// reapGrace is the minimum age of a container before Reap may remove it:
// the longest time limit plus a teardown window for kill, logs and remove.
func (r *DockerRunner) reapGrace() time.Duration {
	var longest time.Duration
	for _, p := range r.registry.Profiles() {
		if p.TimeLimit > longest {
			longest = p.TimeLimit
		}
	}
	return longest + 3*teardownTimeout
}

// RunReaper calls Reap every interval until ctx is cancelled.
func (r *DockerRunner) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("zombie cleanup stopped")
			return
		case <-ticker.C:
			n, err := r.Reap(ctx)
			if err != nil {
				r.logger.Error("zombie cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				r.logger.Info("removed zombie containers", zap.Int("count", n))
			}
		}
	}
}

// buildArchive packs the source file and input into a tar rooted at the
// sandbox working directory.
func buildArchive(sourceFile, code, stdin string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	dir := workingDir[1:] + "/"
	if err := tw.WriteHeader(&tar.Header{Name: dir, Mode: 0o755, Typeflag: tar.TypeDir}); err != nil {
		return nil, err
	}
	files := []struct {
		name string
		body string
	}{
		{sourceFile, code},
		{inputFile, stdin},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name: dir + f.name,
			Mode: 0o644,
			Size: int64(len(f.body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func ptr[T any](v T) *T { return &v }
