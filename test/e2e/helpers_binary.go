//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dodgybits/shuffle/pkg/client"
)

const e2eAPIKey = "e2e-test-api-key"

// shuffleServer manages a running shuffle server process.
type shuffleServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile *os.File
}

// startShuffle launches the server on a fresh data directory and waits for
// it to become healthy.
func startShuffle(t *testing.T) *shuffleServer {
	t.Helper()
	requireShuffle(t)
	return launch(t, t.TempDir(), "shuffle.log")
}

// restartOnSameData stops the server and starts a new one on the same
// database with a new port.
func (s *shuffleServer) restartOnSameData(t *testing.T) *shuffleServer {
	t.Helper()
	if err := s.stop(); err != nil {
		t.Fatalf("stop shuffle: %v", err)
	}
	return launch(t, s.dataDir, "shuffle-restart.log")
}

func launch(t *testing.T, dataDir, logName string) *shuffleServer {
	t.Helper()

	port := freePort(t)
	cmd := exec.Command(shuffleBin)
	cmd.Env = append(serverEnv(dataDir), fmt.Sprintf("SHUFFLE_PORT=%d", port))

	lf, err := os.Create(filepath.Join(dataDir, logName))
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start shuffle: %v", err)
	}

	s := &shuffleServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: lf,
	}
	t.Cleanup(func() {
		_ = s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("shuffle not healthy: %v\n%s", err, s.logs(t))
	}
	return s
}

// serverEnv configures the binary entirely through the environment.
func serverEnv(dataDir string) []string {
	return append(os.Environ(),
		"SHUFFLE_DB_PATH="+filepath.Join(dataDir, "shuffle.db"),
		"SHUFFLE_API_KEY="+e2eAPIKey,
		"SHUFFLE_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"SHUFFLE_LOG_LEVEL=debug",
	)
}

// stop sends SIGINT and waits for the process to exit.
func (s *shuffleServer) stop() error {
	if s.cmd == nil || s.cmd.Process == nil || s.cmd.ProcessState != nil {
		return nil
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		return err
	}
	return s.cmd.Wait()
}

func (s *shuffleServer) baseURL() string {
	return "http://" + s.address
}

func (s *shuffleServer) client() *client.Client {
	return client.New(s.baseURL(), e2eAPIKey)
}

func (s *shuffleServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	c := client.New(s.baseURL(), "")
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := c.Health(ctx)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("shuffle not healthy after %s", timeout)
}

func (s *shuffleServer) logs(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(s.logFile.Name())
	if err != nil {
		return ""
	}
	return string(data)
}

// runCLI runs a shuffle subcommand against the server's data directory.
func (s *shuffleServer) runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(shuffleBin, args...)
	cmd.Env = serverEnv(s.dataDir)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// freePort returns a free TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
