package rgethttp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rget/internal/utils"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateInit State = iota
	StateProbing
	StatePlanning
	StateSegmenting
	StateJoining
	StateSequentialDownloading
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateProbing:
		return "probing"
	case StatePlanning:
		return "planning"
	case StateSegmenting:
		return "segmenting"
	case StateJoining:
		return "joining"
	case StateSequentialDownloading:
		return "sequential"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Strategy int

const (
	StrategyComplete Strategy = iota
	StrategySegmented
	StrategySequential
)

func (s Strategy) String() string {
	switch s {
	case StrategyComplete:
		return "complete"
	case StrategySegmented:
		return "segmented"
	case StrategySequential:
		return "sequential"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ChooseStrategy decides how a run proceeds once the probe is done. existing
// must already be zero when resume was not requested.
func ChooseStrategy(info utils.ResourceInfo, probeErr error, existing int64, connections int) Strategy {
	switch {
	case probeErr != nil, !info.LengthKnown:
		return StrategySequential
	case existing > 0 && existing >= info.Length:
		return StrategyComplete
	case info.Length == 0, !info.RangeSupported, connections <= 1:
		return StrategySequential
	}
	return StrategySegmented
}

// StartInfo describes a run once its output path and strategy are known.
type StartInfo struct {
	OutputPath string
	Resource   utils.ResourceInfo
	Existing   int64
	Strategy   Strategy
	Segments   []utils.Segment
}

type Option func(*Downloader)

// WithClient replaces the client built from the request's settings.
func WithClient(client utils.HTTPDoer) Option {
	return func(d *Downloader) { d.client = client }
}

func WithProgress(fn utils.ProgressFunc) Option {
	return func(d *Downloader) { d.progress = fn }
}

// WithStartFunc is called once per run before any download request is sent.
func WithStartFunc(fn func(StartInfo)) Option {
	return func(d *Downloader) { d.onStart = fn }
}

// WithStateFunc observes every state transition of a run.
func WithStateFunc(fn func(State)) Option {
	return func(d *Downloader) { d.onState = fn }
}

// Downloader runs the probe, decides between a segmented and a sequential
// download and drives it to completion.
type Downloader struct {
	client   utils.HTTPDoer
	progress utils.ProgressFunc
	onStart  func(StartInfo)
	onState  func(State)
}

func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Downloader) transition(s State) {
	log.Debug().Str("op", "http/orchestrator").Stringer("state", s).Msg("state transition")
	if d.onState != nil {
		d.onState(s)
	}
}

func (d *Downloader) fail(err error) (string, error) {
	d.transition(StateFailed)
	return "", err
}

// Download fetches req.URL and returns the path of the finished file. On
// failure the partial file stays on disk so a later run with Resume set can
// continue it.
func (d *Downloader) Download(ctx context.Context, req utils.DownloadRequest) (string, error) {
	d.transition(StateInit)
	if err := utils.ValidateRequest(req); err != nil {
		return d.fail(&utils.PhaseError{Phase: "validate", Err: err})
	}
	client := d.client
	if client == nil {
		client = utils.NewRgetHTTPClient(req.HTTPClientConfig())
	}

	d.transition(StateProbing)
	info, probeErr := ProbeLength(ctx, client, req.URL)
	if probeErr != nil {
		log.Warn().Str("op", "http/orchestrator").Err(probeErr).Msg("Probe failed, falling back to single-stream download")
	}
	outputPath := utils.ResolveOutputPath(req.OutputPath, info.FileName, req.URL)

	var existing int64
	if req.Resume {
		size, err := utils.ExistingSize(outputPath)
		if err != nil {
			return d.fail(&utils.PhaseError{Phase: "prepare output", Err: err})
		}
		existing = size
	}
	rangesProbed := false
	if probeErr == nil && info.LengthKnown && info.Length > existing && req.Connections > 1 {
		info.RangeSupported = ProbeRanges(ctx, client, req.URL)
		rangesProbed = true
	}

	start := StartInfo{
		OutputPath: outputPath,
		Resource:   info,
		Existing:   existing,
		Strategy:   ChooseStrategy(info, probeErr, existing, req.Connections),
	}
	log.Debug().Str("op", "http/orchestrator").
		Str("path", outputPath).
		Int64("length", info.Length).
		Bool("length_known", info.LengthKnown).
		Bool("ranges", info.RangeSupported).
		Int64("existing", existing).
		Stringer("strategy", start.Strategy).
		Msg("strategy chosen")

	switch start.Strategy {
	case StrategyComplete:
		d.notifyStart(start)
		log.Info().Str("op", "http/orchestrator").Msgf("%s is already complete", outputPath)
		d.transition(StateDone)
		return outputPath, nil
	case StrategySequential:
		resume := req.Resume
		if rangesProbed && !info.RangeSupported {
			// a known non-ranging server would only reject the resume request
			resume = false
			start.Existing = 0
		}
		d.notifyStart(start)
		d.transition(StateSequentialDownloading)
		if _, err := FetchSequential(ctx, client, req.URL, outputPath, start.Existing, resume, d.progress); err != nil {
			return d.fail(&utils.PhaseError{Phase: "sequential fetch", Err: err})
		}
		d.transition(StateDone)
		return outputPath, nil
	}

	d.transition(StatePlanning)
	start.Segments = PlanSegments(existing, info.Length, req.Connections)
	d.notifyStart(start)
	if err := d.downloadSegments(ctx, client, req.URL, outputPath, existing, info.Length, start.Segments); err != nil {
		return d.fail(err)
	}
	d.transition(StateDone)
	return outputPath, nil
}

func (d *Downloader) notifyStart(start StartInfo) {
	if d.onStart != nil {
		d.onStart(start)
	}
}

// downloadSegments pre-sizes the output file to total and fetches every
// segment concurrently into it. A failing segment does not cancel its
// siblings; all of them are awaited before the file is closed.
func (d *Downloader) downloadSegments(ctx context.Context, client utils.HTTPDoer, url, outputPath string, existing, total int64, segments []utils.Segment) error {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &utils.PhaseError{Phase: "prepare output", Err: fmt.Errorf("%w: %w", utils.ErrIOFailure, err)}
	}
	defer outFile.Close()
	if err := outFile.Truncate(total); err != nil {
		return &utils.PhaseError{Phase: "prepare output", Err: fmt.Errorf("%w: %w", utils.ErrIOFailure, err)}
	}

	d.transition(StateSegmenting)
	written := make([]int64, len(segments))
	var g errgroup.Group
	for i, seg := range segments {
		g.Go(func() error {
			n, err := FetchSegment(ctx, client, url, seg, outFile, d.progress)
			written[i] = n
			if err != nil {
				return &utils.PhaseError{
					Phase: "segmented fetch",
					Err:   &utils.SegmentError{Segment: seg, Written: n, Err: err},
				}
			}
			if n != seg.Len() {
				return &utils.PhaseError{
					Phase: "segmented fetch",
					Err:   &utils.SegmentError{Segment: seg, Written: n, Err: utils.ErrIncompleteSegment},
				}
			}
			return nil
		})
	}

	d.transition(StateJoining)
	if err := g.Wait(); err != nil {
		keep := validPrefix(existing, segments, written)
		log.Error().Str("op", "http/orchestrator").Err(err).Msgf("Segmented download failed, keeping %d verified bytes of %s", keep, outputPath)
		if truncErr := outFile.Truncate(keep); truncErr != nil {
			return errors.Join(err, &utils.PhaseError{Phase: "prepare output", Err: fmt.Errorf("%w: %w", utils.ErrIOFailure, truncErr)})
		}
		return err
	}
	if err := outFile.Sync(); err != nil {
		return &utils.PhaseError{Phase: "finalize output", Err: fmt.Errorf("%w: %w", utils.ErrIOFailure, err)}
	}
	if err := outFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return &utils.PhaseError{Phase: "finalize output", Err: fmt.Errorf("%w: %w", utils.ErrIOFailure, err)}
	}
	log.Info().Str("op", "http/orchestrator").Msgf("Segmented download successful for %s", outputPath)
	return nil
}

// validPrefix is the length of the leading run of bytes known to be written:
// the resumed prefix plus every segment up to the first incomplete one. The
// pre-sized tail past it is cut off so a resume never trusts unwritten zeros.
func validPrefix(existing int64, segments []utils.Segment, written []int64) int64 {
	prefix := existing
	for i, seg := range segments {
		if written[i] != seg.Len() {
			return prefix + written[i]
		}
		prefix = seg.End + 1
	}
	return prefix
}
