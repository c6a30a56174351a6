// Package processor holds the per-job processing state machine. All
// job-scoped errors terminate here as a failed record; only infrastructure
// errors (store writes) propagate to the consumption loop.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/reelsmith/internal/common"
	"github.com/jo-hoe/reelsmith/internal/jobs"
	"github.com/jo-hoe/reelsmith/internal/media"
	"github.com/jo-hoe/reelsmith/internal/objectstore"
)

// SourceFetcher materializes job sources into local scratch storage.
type SourceFetcher interface {
	Fetch(ctx context.Context, source, destPath string) error
	FetchAll(ctx context.Context, sources []string, destDir string) ([]string, error)
}

// Worker implements jobs.Processor. One call to Process drives one job from
// dequeue to a terminal state: download sources, transcode one clip per
// image in input order, mux clips with the audio track, upload the result.
type Worker struct {
	log         *slog.Logger
	store       jobs.Store
	fetcher     SourceFetcher
	pipeline    media.Pipeline
	objects     objectstore.Store
	scratchRoot string
	stepTimeout time.Duration
}

// Ensure Worker implements jobs.Processor
var _ jobs.Processor = (*Worker)(nil)

func New(log *slog.Logger, store jobs.Store, fetcher SourceFetcher, pipeline media.Pipeline, objects objectstore.Store, scratchRoot string, stepTimeout time.Duration) *Worker {
	return &Worker{
		log:         log,
		store:       store,
		fetcher:     fetcher,
		pipeline:    pipeline,
		objects:     objects,
		scratchRoot: scratchRoot,
		stepTimeout: stepTimeout,
	}
}

func (w *Worker) Process(ctx context.Context, qj jobs.QueuedJob) error {
	log := w.log.With("job_id", qj.JobID)

	// The record moves to processing before any external call, so a worker
	// crash mid-job is observable as stuck-in-processing rather than lost.
	if err := w.store.MarkProcessing(qj.JobID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := os.MkdirAll(w.scratchRoot, 0o755); err != nil {
		w.fail(log, qj.JobID, fmt.Errorf("ensure scratch root: %w", err))
		return err
	}
	scratch, err := os.MkdirTemp(w.scratchRoot, "job-"+qj.JobID+"-")
	if err != nil {
		w.fail(log, qj.JobID, fmt.Errorf("create scratch dir: %w", err))
		return err
	}
	defer func() {
		// Cleanup must never mask the job's real outcome.
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("scratch cleanup failed", "dir", scratch, "err", err)
		}
	}()

	resultURL, err := w.assemble(ctx, log, qj, scratch)
	if err != nil {
		w.fail(log, qj.JobID, err)
		return err
	}

	if err := w.store.SaveResult(qj.JobID, resultURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	log.Info("job completed", "result_url", resultURL)
	return nil
}

func (w *Worker) assemble(ctx context.Context, log *slog.Logger, qj jobs.QueuedJob, scratch string) (string, error) {
	req := qj.Request

	// downloading
	log.Info("downloading sources", "images", len(req.Images))
	audioPath := filepath.Join(scratch, "audio"+sourceExt(req.AudioSource))
	if err := w.step(ctx, func(c context.Context) error {
		return w.fetcher.Fetch(c, req.AudioSource, audioPath)
	}); err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}

	sources := make([]string, len(req.Images))
	for i, img := range req.Images {
		sources[i] = img.Source
	}
	var imagePaths []string
	if err := w.step(ctx, func(c context.Context) error {
		var ferr error
		imagePaths, ferr = w.fetcher.FetchAll(c, sources, scratch)
		return ferr
	}); err != nil {
		return "", fmt.Errorf("download images: %w", err)
	}

	// transcoding-clips: input order fixes final video order. A failure on
	// clip i aborts the remaining clips; there is no partial salvage.
	clips := make([]media.Clip, 0, len(req.Images))
	for i, slot := range req.Images {
		seconds := slot.ClipSeconds()
		clipPath := filepath.Join(scratch, fmt.Sprintf("clip_%03d.mp4", i))
		log.Debug("transcoding clip", "index", i, "seconds", seconds)
		if err := w.step(ctx, func(c context.Context) error {
			return w.pipeline.MakeClip(c, imagePaths[i], seconds, clipPath)
		}); err != nil {
			return "", fmt.Errorf("transcode clip %d: %w", i, err)
		}
		clips = append(clips, media.Clip{Path: clipPath, Seconds: seconds})
	}

	// muxing
	log.Info("muxing", "clips", len(clips))
	outPath := filepath.Join(scratch, "final.mp4")
	if err := w.step(ctx, func(c context.Context) error {
		return w.pipeline.Mux(c, clips, audioPath, outPath, req.TransitionSeconds)
	}); err != nil {
		return "", fmt.Errorf("mux: %w", err)
	}

	// uploading
	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read final video: %w", err)
	}
	key := path.Join(common.VideosDirName, qj.JobID+".mp4")
	var resultURL string
	if err := w.step(ctx, func(c context.Context) error {
		var perr error
		resultURL, perr = w.objects.Put(c, key, data, common.ContentTypeMP4)
		return perr
	}); err != nil {
		return "", fmt.Errorf("upload final video: %w", err)
	}
	return resultURL, nil
}

// step bounds one external call with the configured timeout; expiry surfaces
// as a step failure, not a hung worker.
func (w *Worker) step(ctx context.Context, fn func(context.Context) error) error {
	if w.stepTimeout <= 0 {
		return fn(ctx)
	}
	stepCtx, cancel := context.WithTimeout(ctx, w.stepTimeout)
	defer cancel()
	return fn(stepCtx)
}

func (w *Worker) fail(log *slog.Logger, jobID string, cause error) {
	log.Error("job failed", "err", cause)
	if err := w.store.SaveError(jobID, cause.Error(), time.Now().UTC()); err != nil {
		log.Error("persist failure state", "err", err)
	}
}

// sourceExt extracts a file extension from a source reference so scratch
// files keep a recognizable suffix for the transcoder.
func sourceExt(source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if u, err := url.Parse(source); err == nil {
			return path.Ext(u.Path)
		}
		return ""
	}
	return filepath.Ext(source)
}
