package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
)

func TestBuildArgs(t *testing.T) {
	q := domain.QualityProfile{Name: "480", Args: []string{"-c:v", "libx264", "-s", "854x480"}}
	got := BuildArgs("ffmpeg", "/work/in.mkv", "/encode/out.mkv", q)
	assert.Equal(t, []string{
		"ffmpeg", "-hide_banner", "-nostdin", "-y", "-i", "/work/in.mkv",
		"-progress", "pipe:1", "-nostats",
		"-c:v", "libx264", "-s", "854x480",
		"/encode/out.mkv",
	}, got)
}

func TestParseProgress(t *testing.T) {
	out := strings.Join([]string{
		"frame=10",
		"out_time_us=5000000",
		"total_size=1048576",
		"speed=1.5x",
		"progress=continue",
		"out_time_ms=10000000",
		"total_size=2097152",
		"speed=N/A",
		"progress=end",
		"",
	}, "\n")

	var blocks []Progress
	parseProgress(strings.NewReader(out), func(p Progress) { blocks = append(blocks, p) })

	require.Len(t, blocks, 2)
	assert.Equal(t, 5*time.Second, blocks[0].OutTime)
	assert.Equal(t, int64(1048576), blocks[0].TotalSize)
	assert.InDelta(t, 1.5, blocks[0].Speed, 0.001)
	assert.False(t, blocks[0].Done)

	assert.Equal(t, 10*time.Second, blocks[1].OutTime)
	assert.True(t, blocks[1].Done)
}

func TestStatusText(t *testing.T) {
	p := Progress{OutTime: 30 * time.Second, TotalSize: 50_000_000, Speed: 2}
	got := StatusText("[S01-E01] Show [480p] [Sub].mkv", p, 60*time.Second, 15*time.Second)

	assert.Contains(t, got, "[S01-E01] Show [480p] [Sub].mkv")
	assert.Contains(t, got, "50.00%")
	assert.Contains(t, got, "▰▰▰▰▰▰▱▱▱▱▱▱")
	assert.Contains(t, got, "50 MB out of ~ 100 MB")
	assert.Contains(t, got, "Time Left :</b> 15s")

	unknown := StatusText("x.mkv", Progress{OutTime: 90 * time.Second}, 0, time.Minute)
	assert.Contains(t, unknown, "Encoded :</b> 1m30s")
	assert.NotContains(t, unknown, "%")
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	_, _ = tb.Write([]byte("hello"))
	_, _ = tb.Write([]byte(" world"))
	assert.Equal(t, "world", tb.String())
}
