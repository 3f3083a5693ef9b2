package resource

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out []byte
	err error
}

func (f fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f.out, f.err
}

func TestProbeHardwareCPUFallback(t *testing.T) {
	hw := ProbeHardware(context.Background(), fakeRunner{err: fmt.Errorf("exec: not found")})
	require.Equal(t, "cpu", hw.Device)
	require.False(t, hw.Accelerated())
	require.Equal(t, PrecisionFloat32, hw.Precision)
	require.Equal(t, 16, hw.EmbedBatchSize)
}

func TestProbeHardwareGarbageOutput(t *testing.T) {
	hw := ProbeHardware(context.Background(), fakeRunner{out: []byte("NVIDIA-SMI has failed\n")})
	require.Equal(t, "cpu", hw.Device)
}

func TestProbeHardwareCUDA(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		precision Precision
		batch     int
	}{
		{name: "large card", out: "24576, 22000\n", precision: PrecisionFloat32, batch: 128},
		{name: "mid card", out: "12288, 10000\n", precision: PrecisionFloat16, batch: 64},
		{name: "small card", out: "8192, 5000\n", precision: PrecisionInt4, batch: 32},
		{name: "tiny card", out: "4096, 2000\n", precision: PrecisionInt4, batch: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hw := ProbeHardware(context.Background(), fakeRunner{out: []byte(tt.out)})
			require.Equal(t, "cuda", hw.Device)
			require.True(t, hw.Accelerated())
			require.Equal(t, tt.precision, hw.Precision)
			require.Equal(t, tt.batch, hw.EmbedBatchSize)
		})
	}
}

func TestParseSMIMemory(t *testing.T) {
	total, free, ok := parseSMIMemory("16384, 12000\n8192, 4000\n")
	require.True(t, ok)
	require.Equal(t, 16384, total)
	require.Equal(t, 12000, free)

	_, _, ok = parseSMIMemory("")
	require.False(t, ok)
}
