package uploader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"driftshare.io/driftshare/pkg/codec"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/events"
	"driftshare.io/driftshare/pkg/log"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// SegmentBody resolves a job's entity id to the ciphertext body and the
// obfuscated subject to post under. The segmenter has already produced
// both; this is how the worker pool pulls them back out of whatever
// staging the caller used (in-memory map, temp files, etc).
type SegmentBody func(segmentID string) (body []byte, subject string, group string, err error)

// Config tunes the worker pool.
type Config struct {
	Workers      int
	SessionLimit rate.Limit // max articles/sec for this session; 0 disables
	RetryPolicy  netpkg.RetryPolicy
	LineWidth    int
}

func DefaultConfig() Config {
	return Config{
		Workers:     4,
		RetryPolicy: netpkg.DefaultRetryPolicy(),
		LineWidth:   codec.DefaultLineWidth,
	}
}

// Pool runs Config.Workers goroutines pulling jobs off a Queue, posting
// segments through a net.Pool, and writing job/segment state back to the
// store. Each job posts exactly one article; posting is the unit of
// retry and redundancy.
type Pool struct {
	cfg     Config
	queue   *Queue
	net     *netpkg.Pool
	store   storage.Store
	broker  *events.Broker
	bodies  SegmentBody
	limiter *rate.Limiter

	wg sync.WaitGroup
}

func New(cfg Config, queue *Queue, net *netpkg.Pool, store storage.Store, broker *events.Broker, bodies SegmentBody) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	var limiter *rate.Limiter
	if cfg.SessionLimit > 0 {
		limiter = rate.NewLimiter(cfg.SessionLimit, 1)
	}
	return &Pool{cfg: cfg, queue: queue, net: net, store: store, broker: broker, bodies: bodies, limiter: limiter}
}

// Start launches the worker goroutines. Call Stop to shut them down.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func(id string) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(workerID)
	}
}

// Stop closes the queue and waits for workers to drain in-flight jobs.
func (p *Pool) Stop() {
	p.queue.Close()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID string) {
	logger := log.WithJobID(workerID)
	for {
		job, ok := p.queue.Next(ctx, workerID)
		if !ok {
			return
		}
		if err := p.process(ctx, job); err != nil {
			logger.Warn().Str("job", job.ID).Err(err).Msg("upload job failed")
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (p *Pool) process(ctx context.Context, job *types.Job) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, subject, group, err := p.bodies(job.EntityID)
	if err != nil {
		return p.fail(job, err)
	}

	seg, err := p.store.GetSegment(job.EntityID)
	if err != nil {
		return p.fail(job, err)
	}
	seg.State = types.SegmentUploading
	seg.AttemptCount++
	_ = p.store.UpdateSegment(seg)

	header := codec.Header{CiphertextHashPrefix: hashPrefix(body), RedundancyIndex: seg.RedundancyIndex}
	article := codec.AssembleArticle(header, body, p.cfg.LineWidth)

	messageID, _, err := p.net.PostArticle(ctx, p.cfg.RetryPolicy, "", subject, []byte(article), group)
	if err != nil {
		seg.State = types.SegmentFailed
		_ = p.store.UpdateSegment(seg)
		return p.fail(job, err)
	}

	seg.State = types.SegmentUploaded
	seg.MessageID = messageID
	seg.Subject = subject
	seg.TargetGroup = group
	seg.UploadedAt = time.Now()
	if err := p.store.UpdateSegment(seg); err != nil {
		return p.fail(job, err)
	}

	p.queue.Complete(job)
	_ = p.store.UpdateJob(job)
	p.broker.Publish(&events.Event{Type: events.EventSegmentUploaded, Message: seg.ID})
	return nil
}

func (p *Pool) fail(job *types.Job, cause error) error {
	classified := errs.Transient("uploader.process", cause)
	p.queue.Fail(job, classified.Error())
	_ = p.store.UpdateJob(job)
	p.broker.Publish(&events.Event{Type: events.EventSegmentFailed, Message: job.EntityID, Metadata: map[string]string{"error": cause.Error()}})
	return classified
}

func hashPrefix(body []byte) string {
	const prefixLen = 16
	h := crypto.HashHex(body)
	if len(h) > prefixLen {
		return h[:prefixLen]
	}
	return h
}
