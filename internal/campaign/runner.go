package campaign

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrRunnerClosed = errors.New("campaign runner closed")

// NewWorkerID builds a process-unique worker identity. The hostname prefix
// makes orphan-sweep logs attributable to a machine.
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Runner owns the goroutines driving campaign loops in this process.
//
// One goroutine per campaign; Start is idempotent while a loop is live.
// Claiming is left to the processor, so two processes racing Start on the
// same campaign resolve through the store, not through the runner.
type Runner struct {
	proc     *Processor
	workerID string
	log      *slog.Logger

	mu      sync.Mutex
	active  map[string]struct{}
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(proc *Processor, workerID string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if workerID == "" {
		workerID = NewWorkerID()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		proc:     proc,
		workerID: workerID,
		log:      log,
		active:   map[string]struct{}{},
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

func (r *Runner) WorkerID() string { return r.workerID }

// Start launches the campaign loop if it is not already live in this process.
func (r *Runner) Start(campaignID string) error {
	if campaignID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	if _, live := r.active[campaignID]; live {
		return nil
	}
	r.active[campaignID] = struct{}{}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, campaignID)
			r.mu.Unlock()
		}()
		if err := r.proc.Run(r.baseCtx, campaignID, r.workerID); err != nil {
			r.log.Error("campaign run ended with error", "campaign_id", campaignID, "err", err)
		}
	}()
	return nil
}

// Running reports whether this process currently drives the campaign.
func (r *Runner) Running(campaignID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, live := r.active[campaignID]
	return live
}

// Shutdown cancels all loops and waits for them to park their campaigns.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
