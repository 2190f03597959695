package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"toolbox/internal/model"
	"toolbox/internal/tts"
)

// RecordStore is the slice of the record client the pipeline needs.
type RecordStore interface {
	GetEssay(ctx context.Context, id string) (*model.Essay, error)
	UpdateEssay(ctx context.Context, id string, fields map[string]any) error
	UploadAudio(ctx context.Context, id string, data []byte, filename string) (string, error)
}

// Processor runs the essay audio pipeline: mark processing, synthesize,
// upload, mark completed — or mark error on any failure. Synthesis and
// upload run detached from the triggering HTTP request; clients poll the
// record's status for the outcome.
type Processor struct {
	store      RecordStore
	synth      tts.Synthesizer
	log        *logrus.Logger
	jobTimeout time.Duration

	wg sync.WaitGroup

	// locks serializes synthesis per essay id so concurrent triggers cannot
	// interleave uploads and status writes for the same record. The table is
	// never pruned; the essay collection is tiny.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Processor. jobTimeout bounds one detached synthesis job,
// including the audio upload.
func New(store RecordStore, synth tts.Synthesizer, log *logrus.Logger, jobTimeout time.Duration) *Processor {
	if jobTimeout <= 0 {
		jobTimeout = 120 * time.Second
	}
	return &Processor{
		store:      store,
		synth:      synth,
		log:        log,
		jobTimeout: jobTimeout,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Trigger starts a processing run for an essay. It fetches the record,
// persists a voice change if one was supplied, marks the record processing,
// and launches the detached synthesis job. It returns as soon as the record
// is marked processing; the caller is never told synchronously whether
// synthesis succeeded.
func (p *Processor) Trigger(ctx context.Context, id, voiceID string) error {
	essay, err := p.store.GetEssay(ctx, id)
	if err != nil {
		return err
	}

	if voiceID != "" && voiceID != essay.VoiceID {
		if err := p.store.UpdateEssay(ctx, id, map[string]any{"voiceId": voiceID}); err != nil {
			return fmt.Errorf("failed to update voice: %w", err)
		}
		essay.VoiceID = voiceID
	}

	if err := p.store.UpdateEssay(ctx, id, map[string]any{"status": model.StatusProcessing}); err != nil {
		return fmt.Errorf("failed to mark essay processing: %w", err)
	}

	voice := essay.VoiceID
	if voice == "" {
		voice = tts.DefaultVoice
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(id, voice, essay.Content)
	}()

	return nil
}

// Start runs a full trigger detached from any request, used when an essay
// has just been created and the response must not wait for the record
// round-trips. Failures are logged; there is nobody to report them to.
func (p *Processor) Start(id, voiceID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
		defer cancel()
		if err := p.Trigger(ctx, id, voiceID); err != nil {
			p.log.WithError(err).WithField("essay_id", id).Error("failed to trigger processing")
		}
	}()
}

// Shutdown waits for in-flight jobs to finish, bounded by ctx.
func (p *Processor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown aborted with jobs still running: %w", ctx.Err())
	}
}

// run executes the detached part of the pipeline for one essay. It uses its
// own context: the triggering request has already been answered.
func (p *Processor) run(id, voice, content string) {
	lock := p.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	jobLog := p.log.WithFields(logrus.Fields{
		"job_id":   uuid.NewString(),
		"essay_id": id,
		"voice":    voice,
		"provider": p.synth.Name(),
	})
	jobLog.Info("processing essay")

	audio, err := p.synth.Synthesize(ctx, content, voice)
	if err != nil {
		p.fail(id, jobLog, err)
		return
	}

	audioFileID, err := p.store.UploadAudio(ctx, id, audio, id+".mp3")
	if err != nil {
		p.fail(id, jobLog, err)
		return
	}

	err = p.store.UpdateEssay(ctx, id, map[string]any{
		"status":        model.StatusCompleted,
		"audio_file_id": audioFileID,
	})
	if err != nil {
		p.fail(id, jobLog, err)
		return
	}

	jobLog.WithField("audio_file_id", audioFileID).Info("essay processed")
}

// fail persists status=error. No automatic retry; the operator re-triggers.
func (p *Processor) fail(id string, jobLog *logrus.Entry, cause error) {
	jobLog.WithError(cause).Error("essay processing failed")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := p.store.UpdateEssay(ctx, id, map[string]any{"status": model.StatusError}); err != nil {
		jobLog.WithError(err).Error("failed to mark essay as errored")
	}
}

func (p *Processor) lockFor(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[id] = lock
	}
	return lock
}
