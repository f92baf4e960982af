package elfloader_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildOneGoBinary cross compiles testdata/go/basic for linux/goarch with the
// given build mode and returns the output path.
func buildOneGoBinary(t *testing.T, outDir string, goarch string, buildmode string) string {
	t.Helper()

	outputPath := filepath.Join(outDir, fmt.Sprintf("basic_go_linux-%s-%s", goarch, buildmode))
	sourcePath := "./testdata/go/basic"

	args := []string{
		"build",
		"-buildmode=" + buildmode,
		"-trimpath",
		"-o", outputPath,
		sourcePath,
	}

	cmd := exec.Command("go", args...)
	cmd.Env = overrideEnv(os.Environ(), map[string]string{
		"GOOS":        "linux",
		"GOARCH":      goarch,
		"CGO_ENABLED": "0",
		"GOCACHE":     filepath.Join(os.TempDir(), "elfloader-go-build-cache"),
	})
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build go binary target=linux/%s mode=%s: %v\n%s", goarch, buildmode, err, out)
	}
	return outputPath
}

func overrideEnv(base []string, overrides map[string]string) []string {
	block := make(map[string]struct{}, len(overrides))
	for key := range overrides {
		block[key] = struct{}{}
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		if _, drop := block[kv[:eq]]; drop {
			continue
		}
		out = append(out, kv)
	}

	for key, value := range overrides {
		out = append(out, key+"="+value)
	}
	return out
}

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH", name)
	}
}
