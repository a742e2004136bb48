package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	rgethttp "github.com/tanq16/rget/internal/downloaders/http"
	"github.com/tanq16/rget/internal/output"
	"github.com/tanq16/rget/internal/utils"
)

// Job is one download handed to a worker.
type Job struct {
	ID      string
	Request utils.DownloadRequest
}

type Result struct {
	Job        Job
	OutputPath string
	Err        error
}

func NewJob(req utils.DownloadRequest) Job {
	return Job{ID: uuid.NewString(), Request: req}
}

// ConnectionsPerJob caps per-download connections so that all workers
// together stay within utils.MaxTotalConnections.
func ConnectionsPerJob(workers, connections int) int {
	workers = max(workers, 1)
	if workers*connections > utils.MaxTotalConnections {
		return max(utils.MaxTotalConnections/workers, 1)
	}
	return max(connections, 1)
}

// Run downloads every job on numWorkers workers and renders progress to out.
// Results are returned in job order; the error joins every failed download.
func Run(ctx context.Context, jobs []Job, numWorkers int, out io.Writer) ([]Result, error) {
	outputMgr := output.NewManagerTo(out)
	outputMgr.StartDisplay()

	type indexedJob struct {
		index int
		job   Job
	}
	jobCh := make(chan indexedJob, len(jobs))
	for i, job := range jobs {
		jobCh <- indexedJob{index: i, job: job}
	}
	close(jobCh)

	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	for range max(numWorkers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range jobCh {
				results[ij.index] = processJob(ctx, ij.job, outputMgr)
			}
		}()
	}
	wg.Wait()
	outputMgr.StopDisplay()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Job.Request.URL, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func processJob(ctx context.Context, job Job, outputMgr *output.Manager) Result {
	logger := log.With().Str("job", job.ID).Logger()
	funcID := outputMgr.Register(job.Request.URL)
	outputMgr.SetMessage(funcID, fmt.Sprintf("Probing %s", job.Request.URL))

	progressCh := make(chan utils.ProgressEvent, 100)
	progressDone := make(chan struct{})
	var mu sync.Mutex
	total := int64(-1)
	var existing int64
	var name string

	go func() {
		defer close(progressDone)
		var downloaded int64
		segments := make(map[int]int64)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		render := func() {
			mu.Lock()
			t, e, n := total, existing, name
			mu.Unlock()
			outputMgr.UpdateProgress(funcID, e+downloaded, t, fmt.Sprintf("%s (%d streams)", n, len(segments)))
		}
		for {
			select {
			case ev, ok := <-progressCh:
				if !ok {
					return
				}
				downloaded += ev.Delta
				segments[ev.SegmentID] += ev.Delta
			case <-ticker.C:
				render()
			}
		}
	}()

	downloader := rgethttp.NewDownloader(
		rgethttp.WithProgress(func(ev utils.ProgressEvent) { progressCh <- ev }),
		rgethttp.WithStartFunc(func(start rgethttp.StartInfo) {
			mu.Lock()
			name = start.OutputPath
			if start.Resource.LengthKnown {
				total = start.Resource.Length
			}
			existing = start.Existing
			mu.Unlock()
			outputMgr.SetMessage(funcID, fmt.Sprintf("Downloading %s (%s)", start.OutputPath, start.Strategy))
			logger.Debug().Str("path", start.OutputPath).Stringer("strategy", start.Strategy).Int("segments", len(start.Segments)).Msg("download started")
		}),
	)
	outputPath, err := downloader.Download(ctx, job.Request)
	close(progressCh)
	<-progressDone

	if err != nil {
		logger.Error().Err(err).Str("url", job.Request.URL).Msg("download failed")
		outputMgr.ReportError(funcID, err)
		outputMgr.SetMessage(funcID, fmt.Sprintf("Failed %s", job.Request.URL))
		return Result{Job: job, Err: err}
	}
	logger.Info().Str("path", outputPath).Msg("download complete")
	outputMgr.Complete(funcID, fmt.Sprintf("Completed %s", outputPath))
	return Result{Job: job, OutputPath: outputPath}
}
