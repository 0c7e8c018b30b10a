package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const defaultFFprobe = "ffprobe"

// FFprobe reads the first video stream's size with the ffprobe binary.
type FFprobe struct {
	binary string
}

func NewFFprobe(binary string) *FFprobe {
	if binary == "" {
		binary = defaultFFprobe
	}
	return &FFprobe{binary: binary}
}

func (f *FFprobe) Args(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	}
}

func (f *FFprobe) Probe(ctx context.Context, path string) (Dimensions, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, f.Args(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Dimensions{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	return ParseDimensions(stdout.String())
}

// ParseDimensions parses ffprobe's "WIDTHxHEIGHT" output. Only the first
// non-empty line is considered.
func ParseDimensions(out string) (Dimensions, error) {
	var line string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if line == "" {
		return Dimensions{}, ErrNoDimensions
	}

	w, h, ok := strings.Cut(line, "x")
	if !ok {
		return Dimensions{}, fmt.Errorf("unexpected ffprobe output %q", line)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return Dimensions{}, fmt.Errorf("parse width %q: %w", w, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(h, "x")))
	if err != nil {
		return Dimensions{}, fmt.Errorf("parse height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return Dimensions{}, ErrNoDimensions
	}

	return Dimensions{Width: width, Height: height}, nil
}
