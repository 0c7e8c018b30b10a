package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

const (
	// DefaultFormat prefers an mp4 video stream with m4a audio so the merge is a remux.
	DefaultFormat  = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	outputTemplate = "%(title)s.%(ext)s"
	progressEvery  = 500 * time.Millisecond
)

type YtDlp struct {
	binary string
	format string
	logger *zap.Logger
}

func NewYtDlp(binary string, logger *zap.Logger) *YtDlp {
	return &YtDlp{binary: binary, format: DefaultFormat, logger: logger}
}

func (y *YtDlp) Fetch(ctx context.Context, req Request, onProgress ProgressFunc) (*Artifact, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu       sync.Mutex
		lastFile string
	)

	dl := ytdlp.New().
		NoPlaylist().
		Format(y.format).
		MergeOutputFormat(req.MergeFormat).
		Output(filepath.Join(req.OutputDir, outputTemplate))
	if y.binary != "" {
		dl.SetExecutable(y.binary)
	}

	dl.ProgressFunc(progressEvery, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		if update.Filename != "" {
			lastFile = update.Filename
		}
		mu.Unlock()

		p := Progress{
			Downloaded: int64(update.DownloadedBytes),
			Total:      int64(update.TotalBytes),
			Phase:      PhaseDownloading,
			Filename:   update.Filename,
		}
		if update.Status == ytdlp.ProgressStatusFinished {
			p.Phase = PhaseFinished
		}
		if err := onProgress(p); err != nil {
			cancel(err)
		}
	})

	result, err := dl.Run(ctx, req.URL)
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("yt-dlp %s: %w", req.URL, err)
	}

	var candidates []string
	if result != nil {
		if info, err := result.GetExtractedInfo(); err == nil {
			for _, i := range info {
				if i != nil && i.Filename != nil {
					candidates = append(candidates, *i.Filename)
				}
			}
		} else {
			y.logger.Debug("No extracted info from yt-dlp", zap.Error(err))
		}
	}
	mu.Lock()
	if lastFile != "" {
		candidates = append(candidates, lastFile)
	}
	mu.Unlock()

	return FindArtifact(req.OutputDir, req.MergeFormat, candidates...)
}

// FindArtifact locates the file a fetch produced in dir. Each candidate is
// tried as reported and with its extension replaced by the merge format, since
// reported names may predate the merge. Without a match the largest finished
// file in dir wins, preferring the merge format.
func FindArtifact(dir, mergeFormat string, candidates ...string) (*Artifact, error) {
	mergeExt := "." + strings.TrimPrefix(mergeFormat, ".")

	for _, c := range candidates {
		tries := []string{c}
		if ext := filepath.Ext(c); ext != mergeExt {
			tries = append(tries, strings.TrimSuffix(c, ext)+mergeExt)
		}
		for _, path := range tries {
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return &Artifact{Path: path, Size: info.Size()}, nil
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoArtifact, err)
	}

	var best *Artifact
	bestMerged := false
	for _, e := range entries {
		if !e.Type().IsRegular() || isPartial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		merged := strings.EqualFold(filepath.Ext(e.Name()), mergeExt)
		if best == nil || (merged && !bestMerged) || (merged == bestMerged && info.Size() > best.Size) {
			best = &Artifact{Path: filepath.Join(dir, e.Name()), Size: info.Size()}
			bestMerged = merged
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoArtifact, dir)
	}
	return best, nil
}

func isPartial(name string) bool {
	return strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".ytdl") ||
		strings.Contains(name, ".part-Frag") ||
		strings.HasPrefix(name, ".")
}
