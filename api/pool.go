package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"weekplan-api/domain"
)

// The change publisher pushes change-feed events to the queue off the
// request path. Publishing is best-effort: a lost event only delays a
// downstream read-model refresh.

type publishJob struct {
	ev domain.ChangeEvent
}

var (
	once           sync.Once
	jobs           chan publishJob
	workerCount    int
	jobBuf         int
	publishTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalStore    Storage
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownChangePublisher stops worker goroutines and clears shared state.
// It is intended for tests.
func shutdownChangePublisher() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalStore = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	publishTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initChangePublisher(store Storage, logger *log.Logger) {
	once.Do(func() {
		globalStore = store
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalLog = logger

		workerCount = envInt("PUBLISH_WORKERS", 8)
		jobBuf = envInt("PUBLISH_BUFFER", 1024)
		publishTimeout = envDur("PUBLISH_TIMEOUT", 30*time.Second)
		handoffTimeout = envDur("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond)

		jobs = make(chan publishJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go worker(i, jobs)
		}
		globalLog.Infof("change publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, publishTimeout, handoffTimeout)
	})
}

func worker(id int, jobCh <-chan publishJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, publishTimeout)
		err := globalStore.PublishChange(ctx, j.ev)
		cancel()

		if err != nil {
			globalLog.Errorf("change publish failed, err: %v, user: %s, week: %s, op: %s, worker: %d", err, j.ev.UserID, j.ev.WeekKey, j.ev.Op, id)
		}
	}
}

// queueChange hands the event to the publisher pool, falling back to an
// inline publish when the pool is saturated or not running. Failures are
// logged, never surfaced to the caller.
func queueChange(store Storage, ev domain.ChangeEvent) {
	if tryEnqueueJob(publishJob{ev: ev}) {
		return
	}

	if globalLog != nil {
		globalLog.Warn("publish buffer saturated; publishing inline")
	}

	ctx, cancel := context.WithTimeout(bg, inlinePublishTimeout())
	defer cancel()
	if err := store.PublishChange(ctx, ev); err != nil && globalLog != nil {
		globalLog.Errorf("inline change publish failed: %v", err)
	}
}

func inlinePublishTimeout() time.Duration {
	if publishTimeout > 0 {
		return publishTimeout
	}
	return 30 * time.Second
}

func tryEnqueueJob(job publishJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan publishJob, job publishJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan publishJob, job publishJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}

func envInt(name string, def int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}
