package resource

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

type Precision string

const (
	PrecisionFloat32 Precision = "float32"
	PrecisionFloat16 Precision = "float16"
	PrecisionInt4    Precision = "int4"
)

// Hardware is the device and precision selection computed once at startup.
// It is never re-evaluated per request.
type Hardware struct {
	Device      string // "cuda" or "cpu"
	TotalVRAMMB int
	FreeVRAMMB  int
	Precision   Precision
	// EmbedBatchSize is the chunk-embedding batch size fitted to the
	// discovered memory budget.
	EmbedBatchSize int
}

func (h Hardware) Accelerated() bool {
	return h.Device == "cuda"
}

// CommandRunner abstracts external tool invocation so tests can stub the
// probe without nvidia-smi installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ProbeHardware inspects available accelerator hardware via nvidia-smi.
// Any probe failure falls back to CPU with full precision and a conservative
// batch size.
func ProbeHardware(ctx context.Context, runner CommandRunner) Hardware {
	if runner == nil {
		runner = execRunner{}
	}
	out, err := runner.Run(ctx, "nvidia-smi",
		"--query-gpu=memory.total,memory.free",
		"--format=csv,noheader,nounits")
	if err != nil {
		return Hardware{Device: "cpu", Precision: PrecisionFloat32, EmbedBatchSize: 16}
	}
	total, free, ok := parseSMIMemory(string(out))
	if !ok {
		return Hardware{Device: "cpu", Precision: PrecisionFloat32, EmbedBatchSize: 16}
	}
	return Hardware{
		Device:         "cuda",
		TotalVRAMMB:    total,
		FreeVRAMMB:     free,
		Precision:      precisionFor(free),
		EmbedBatchSize: batchSizeFor(free),
	}
}

// parseSMIMemory reads the first GPU line of nvidia-smi csv output.
func parseSMIMemory(out string) (total, free int, ok bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			continue
		}
		t, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		f, err2 := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err1 != nil || err2 != nil {
			continue
		}
		return t, f, true
	}
	return 0, 0, false
}

func precisionFor(freeMB int) Precision {
	switch {
	case freeMB >= 16000:
		return PrecisionFloat32
	case freeMB >= 6000:
		return PrecisionFloat16
	default:
		return PrecisionInt4
	}
}

func batchSizeFor(freeMB int) int {
	switch {
	case freeMB >= 16000:
		return 128
	case freeMB >= 8000:
		return 64
	case freeMB >= 4000:
		return 32
	default:
		return 16
	}
}
