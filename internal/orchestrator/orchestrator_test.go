package orchestrator

import (
	"os"
	"testing"

	"github.com/abeynet/filemesh/internal/protocol"
)

func withTempWD(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestRunSmallAllToAllExperiment(t *testing.T) {
	withTempWD(t)

	cfg := Config{
		NSupers:           2,
		LeavesPerSuper:    2,
		FilesPerLeaf:      3,
		RequestsPerLeaf:   2,
		Topology:          protocol.AllToAll,
		DuplicationFactor: 1,
	}

	result, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.TotalRequests <= 0 {
		t.Fatalf("TotalRequests = %d, want > 0", result.TotalRequests)
	}
	if result.Elapsed <= 0 {
		t.Fatalf("Elapsed = %v, want > 0", result.Elapsed)
	}
}

func TestRunLinearExperimentTwice(t *testing.T) {
	// Running twice in the same process exercises teardown: if peer
	// listeners leaked from the first run, the second run's binds on the
	// same deterministic BasePort+id ports would fail.
	withTempWD(t)

	cfg := Config{
		NSupers:           3,
		LeavesPerSuper:    1,
		FilesPerLeaf:      2,
		RequestsPerLeaf:   1,
		Topology:          protocol.Linear,
		DuplicationFactor: 2,
	}

	if _, err := Run(cfg); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, err := Run(cfg); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
}
