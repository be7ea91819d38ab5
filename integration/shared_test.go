//go:build integration || database

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

var (
	// sharedXrayPath holds the path to a shared xray binary built once for all tests.
	sharedXrayPath string

	// buildOnce ensures we only build the binary once.
	buildOnce sync.Once

	// buildMutex protects the shared binary path.
	buildMutex sync.Mutex

	// tempDir holds the temp directory for cleanup.
	tempDir string
)

// TestMain handles setup and cleanup for all integration tests.
func TestMain(m *testing.M) {
	code := m.Run()

	// Cleanup the shared binary after all tests
	if tempDir != "" {
		_ = os.RemoveAll(tempDir)
	}

	os.Exit(code)
}

// getXrayBinary returns the path to the xray binary, building it once if needed.
func getXrayBinary() string {
	buildMutex.Lock()
	defer buildMutex.Unlock()

	buildOnce.Do(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "xray-integration-*")
		if err != nil {
			panic(fmt.Sprintf("failed to create temp dir: %v", err))
		}

		xrayPath := filepath.Join(tempDir, "xray")
		buildCmd := exec.Command("go", "build", "-o", xrayPath, ".")
		buildCmd.Dir = ".." // Build from parent directory (project root)
		if err := buildCmd.Run(); err != nil {
			panic(fmt.Sprintf("failed to build xray: %v", err))
		}

		sharedXrayPath = xrayPath
	})

	return sharedXrayPath
}

// runXray runs the binary from the project root with extra environment variables
// and returns its combined output.
func runXray(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getXrayBinary(), args...)
	cmd.Dir = "../"
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("Command failed: %s\nOutput: %s", cmd.String(), string(output))
	}
	return string(output), err
}
