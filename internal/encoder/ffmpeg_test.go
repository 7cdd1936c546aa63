package encoder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes a shell script that stands in for ffmpeg/ffprobe so
// tests never spawn the real tools.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o700))
	return path
}

func TestBuildEncodeArgs_PassThrough(t *testing.T) {
	args := buildEncodeArgs("/work/in.mp4", "", "/work/out.mp4")

	assert.Equal(t, []string{
		"-y",
		"-i", "/work/in.mp4",
		"-c", "copy",
		"-movflags", "+faststart",
		"/work/out.mp4",
	}, args)
	assert.NotContains(t, strings.Join(args, " "), "overlay")
}

func TestBuildEncodeArgs_Overlay(t *testing.T) {
	args := buildEncodeArgs("/work/in.mp4", "/assets/hand.mp4", "/work/out.mp4")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-filter_complex")
	assert.Contains(t, joined, "scale2ref")
	assert.Contains(t, joined, "overlay=0:0:shortest=1")
	assert.Contains(t, joined, "-i /assets/hand.mp4")
	assert.Equal(t, "/work/out.mp4", args[len(args)-1])
}

func TestEncode_Success(t *testing.T) {
	// Writes the last argument (the output path) and exits 0.
	tool := fakeTool(t, `for a; do last=$a; done; echo rendered > "$last"`)
	e := NewFFmpegEncoder(tool, "")

	out := filepath.Join(t.TempDir(), "out.mp4")
	err := e.Encode(context.Background(), "in.mp4", "", out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestEncode_FailureRemovesPartialOutput(t *testing.T) {
	tool := fakeTool(t, `for a; do last=$a; done; echo partial > "$last"; echo "Invalid data found" >&2; exit 1`)
	e := NewFFmpegEncoder(tool, "")

	out := filepath.Join(t.TempDir(), "out.mp4")
	err := e.Encode(context.Background(), "in.mp4", "", out)
	require.Error(t, err)

	var encErr *Error
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 1, encErr.ExitCode)
	assert.Contains(t, encErr.StderrTail, "Invalid data found")
	assert.NoFileExists(t, out, "partial output must be removed")
}

func TestEncode_TimeoutKillsChildAndRemovesOutput(t *testing.T) {
	tool := fakeTool(t, `for a; do last=$a; done; echo partial > "$last"; sleep 10`)
	e := NewFFmpegEncoder(tool, "", WithTimeout(100*time.Millisecond))

	out := filepath.Join(t.TempDir(), "out.mp4")
	start := time.Now()
	err := e.Encode(context.Background(), "in.mp4", "", out)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncodeTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "child must be terminated, not awaited")
	assert.NoFileExists(t, out)
}

func TestDuration(t *testing.T) {
	tool := fakeTool(t, `echo "12.480000"`)
	e := NewFFmpegEncoder("", tool)

	d, err := e.Duration(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 12.48, d, 0.001)
}

func TestDuration_ProbeFailure(t *testing.T) {
	tool := fakeTool(t, `echo "no such file" >&2; exit 1`)
	e := NewFFmpegEncoder("", tool)

	_, err := e.Duration(context.Background(), "clip.mp4")
	assert.ErrorIs(t, err, ErrFFprobeExecution)
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(8)

	_, err := tail.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "89abcdef", tail.String())

	_, err = tail.Write([]byte("XY"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefXY", tail.String())
}
