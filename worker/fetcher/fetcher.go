package fetcher

import (
	"context"
	"errors"
)

var ErrNoArtifact = errors.New("fetched file not found")

type Phase int

const (
	PhaseDownloading Phase = iota
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseDownloading:
		return "downloading"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

type Request struct {
	URL         string
	OutputDir   string
	MergeFormat string
}

// Progress is one report from a running fetch. Total is zero when the size of
// the download is not known.
type Progress struct {
	Downloaded int64
	Total      int64
	Phase      Phase
	Filename   string
}

// Percent returns the completed percentage in [0, 100], or -1 when Total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	pct := float64(p.Downloaded) / float64(p.Total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// ProgressFunc receives progress reports. Returning an error aborts the fetch;
// Fetch then returns that error.
type ProgressFunc func(Progress) error

type Artifact struct {
	Path string
	Size int64
}

// Fetcher downloads a single media URL into a local directory. Implementations
// do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, onProgress ProgressFunc) (*Artifact, error)
}
