package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

const defaultDockerImage = "debian:bookworm-slim"

// DockerRunner runs commands in throwaway Docker containers with the
// sandbox workspace bind-mounted, the network disabled, and all
// capabilities dropped.
type DockerRunner struct {
	client *client.Client
	cfg    RunnerConfig
}

// NewDockerRunner creates a Docker-backed runner, verifying the daemon is
// reachable before returning.
func NewDockerRunner(cfg RunnerConfig) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon not accessible: %w", err)
	}

	return &DockerRunner{client: cli, cfg: cfg}, nil
}

// RunCmd runs a command inside an isolated container mounted on the
// workspace directory.
func (r *DockerRunner) RunCmd(ctx context.Context, workspace, name string, args []string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = r.cfg.CmdTimeout
		if timeout <= 0 {
			timeout = defaultCmdTimeout
		}
	}

	img := r.cfg.DockerImage
	if img == "" {
		img = defaultDockerImage
	}
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image %s: %w", img, err)
	}

	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	containerCfg := &container.Config{
		Image:           img,
		Cmd:             append([]string{name}, args...),
		WorkingDir:      "/workspace",
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: absWorkspace,
			Target: "/workspace",
		}},
		Resources: container.Resources{
			Memory:   parseMemory(r.cfg.Memory),
			NanoCPUs: parseCPUs(r.cfg.CPU),
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
	}

	created, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := created.ID

	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(rmCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return Result{Code: 1, TimedOut: true, Stderr: "command execution timed out"}, execCtx.Err()
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container wait error: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := r.collectLogs(ctx, containerID)
	if err != nil {
		return Result{Code: int(exitCode)}, err
	}

	return Result{Stdout: stdout, Stderr: stderr, Code: int(exitCode)}, nil
}

// collectLogs fetches and demultiplexes the container's stdout and stderr.
func (r *DockerRunner) collectLogs(ctx context.Context, containerID string) (string, string, error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", fmt.Errorf("failed to demux container logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// ensureImage pulls the image if it is not present locally.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// The pull only completes once its progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// parseMemory converts a memory string like "1g" or "512m" to bytes.
func parseMemory(s string) int64 {
	if s == "" {
		return 1 * units.GiB
	}
	bytes, err := units.RAMInBytes(s)
	if err != nil || bytes <= 0 {
		return 1 * units.GiB
	}
	return bytes
}

// parseCPUs converts a CPU count string like "2" or "1.5" to NanoCPUs.
func parseCPUs(s string) int64 {
	cpus, err := strconv.ParseFloat(s, 64)
	if err != nil || cpus <= 0 {
		cpus = 2
	}
	return int64(cpus * 1e9)
}
