package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/bus"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/jobstore"
	"github.com/chekaru-labs/chekaru-voice/internal/pipeline"
	"github.com/chekaru-labs/chekaru-voice/internal/protocol"
	"github.com/chekaru-labs/chekaru-voice/internal/voices"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Service serves speech generation over the bus: fire-and-forget
// generation requests with status updates, and request-reply previews.
type Service struct {
	cfg        config.Config
	bus        *bus.Client
	gen        *pipeline.Generator
	jobs       *jobstore.Store
	catalog    *voices.Catalog
	subGen     *nats.Subscription
	subPreview *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func New(parent context.Context, cfg config.Config, busClient *bus.Client, gen *pipeline.Generator, jobs *jobstore.Store, catalog *voices.Catalog, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		gen:     gen,
		jobs:    jobs,
		catalog: catalog,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "speech-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectGenerateRequest, s.handleGenerate)
	if err != nil {
		return err
	}
	s.subGen = sub

	subPreview, err := s.bus.Conn().Subscribe(protocol.SubjectPreviewRequest, s.handlePreview)
	if err != nil {
		s.subGen.Drain()
		return err
	}
	s.subPreview = subPreview
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subGen != nil {
		_ = s.subGen.Drain()
	}
	if s.subPreview != nil {
		_ = s.subPreview.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s != nil && s.subGen != nil && s.subPreview != nil }

func (s *Service) handleGenerate(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.logger.Warn("generate request without text")
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(req)
	}()
}

func (s *Service) runJob(req protocol.GenerateRequest) {
	timeout := time.Duration(s.cfg.Pipeline.JobTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	if err := s.jobs.CreateJob(ctx, req.JobID, req.Voice, len(req.Text)); err != nil {
		s.logger.Warn("failed to record job", slogError(err))
	}

	voice, err := s.resolveVoice(req.Voice)
	if err != nil {
		s.failJob(ctx, req.JobID, err.Error())
		return
	}

	total := s.gen.SegmentCount(req.Text)
	if err := s.jobs.MarkRunning(ctx, req.JobID, total); err != nil {
		s.logger.Warn("failed to mark job running", slogError(err))
	}
	s.publishStatus(protocol.JobStatus{
		JobID:         req.JobID,
		State:         protocol.JobRunning,
		SegmentsTotal: total,
		Timestamp:     time.Now().UTC(),
	})

	gap := s.gen.Gap()
	if req.GapMS > 0 {
		gap = time.Duration(req.GapMS) * time.Millisecond
	}

	progress := func(done, totalSegments int) {
		s.publishStatus(protocol.JobStatus{
			JobID:         req.JobID,
			State:         protocol.JobRunning,
			SegmentsDone:  done,
			SegmentsTotal: totalSegments,
			Timestamp:     time.Now().UTC(),
		})
	}

	result, err := s.gen.RunWithGap(ctx, req.JobID, req.Text, voice.ID, gap, progress)
	if err != nil {
		s.logger.Warn("generation failed", slog.String("job_id", req.JobID), slogError(err))
		s.failJob(ctx, req.JobID, err.Error())
		return
	}

	if err := s.jobs.MarkDone(ctx, req.JobID, result.OutputPath); err != nil {
		s.logger.Warn("failed to mark job done", slogError(err))
	}
	s.appendEvent(ctx, req.JobID, "job.done", protocol.JobStatus{JobID: req.JobID, State: protocol.JobDone, OutputPath: result.OutputPath})

	done := protocol.JobStatus{
		JobID:         req.JobID,
		State:         protocol.JobDone,
		SegmentsDone:  result.Segments,
		SegmentsTotal: result.Segments,
		OutputPath:    result.OutputPath,
		Timestamp:     time.Now().UTC(),
	}
	s.publishStatus(done)
	s.publishDone(done)
}

func (s *Service) failJob(ctx context.Context, jobID, reason string) {
	if err := s.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		s.logger.Warn("failed to mark job failed", slogError(err))
	}
	s.appendEvent(ctx, jobID, "job.failed", protocol.JobStatus{JobID: jobID, State: protocol.JobFailed, Error: reason})

	status := protocol.JobStatus{
		JobID:     jobID,
		State:     protocol.JobFailed,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	}
	s.publishStatus(status)
	s.publishDone(status)
}

func (s *Service) handlePreview(msg *nats.Msg) {
	var req protocol.PreviewRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.respondPreview(msg, protocol.PreviewReply{Error: "bad preview request"})
			return
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
		defer cancel()

		voice, err := s.resolveVoice(req.Voice)
		if err != nil {
			s.respondPreview(msg, protocol.PreviewReply{Error: err.Error()})
			return
		}

		wavData, merged, err := s.gen.Preview(ctx, voice.ID)
		if err != nil {
			s.logger.Warn("preview failed", slog.String("voice", voice.ID), slogError(err))
			s.respondPreview(msg, protocol.PreviewReply{Error: err.Error()})
			return
		}
		s.respondPreview(msg, protocol.PreviewReply{
			SampleRate: merged.SampleRate,
			Channels:   merged.Channels,
			WAVBase64:  base64.StdEncoding.EncodeToString(wavData),
		})
	}()
}

func (s *Service) resolveVoice(idOrName string) (voices.Voice, error) {
	if idOrName == "" {
		if s.cfg.Synth.DefaultVoice != "" {
			if v, err := s.catalog.Resolve(s.cfg.Synth.DefaultVoice); err == nil {
				return v, nil
			}
			return voices.Voice{ID: s.cfg.Synth.DefaultVoice, Name: s.cfg.Synth.DefaultVoice}, nil
		}
		return s.catalog.Default(), nil
	}
	return s.catalog.Resolve(idOrName)
}

func (s *Service) publishStatus(status protocol.JobStatus) {
	if err := s.bus.PublishStatus(status); err != nil {
		s.logger.Warn("failed to publish job status", slogError(err))
	}
}

func (s *Service) publishDone(status protocol.JobStatus) {
	if err := s.bus.PublishDone(status); err != nil {
		s.logger.Warn("failed to publish job completion", slogError(err))
	}
}

func (s *Service) respondPreview(msg *nats.Msg, reply protocol.PreviewReply) {
	if err := s.bus.RespondJSON(msg, reply); err != nil {
		s.logger.Warn("failed to respond to preview", slogError(err))
	}
}

func (s *Service) appendEvent(ctx context.Context, jobID, eventType string, payload protocol.JobStatus) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.jobs.AppendEvent(ctx, jobstore.Event{JobID: jobID, Type: eventType, Payload: data}); err != nil {
		s.logger.Warn("failed to append job event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
