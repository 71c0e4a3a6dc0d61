package protocolif

import (
	"sync"
	"time"

	"github.com/jpillora/backoff"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
)

// pendingCommand tracks one in-flight AECP or ACMP command awaiting its
// correlated response (spec §4.C "record a pending entry").
type pendingCommand struct {
	sequenceID uint16
	onResponse ResponseCallback
	timer      *time.Timer
	backoff    *backoff.Backoff
	attempts   int
	maxRetries int
	timeout    time.Duration
	resend     func() error
}

// pendingTable is the sequence-ID-keyed bookkeeping shared by AECP and ACMP
// command correlation. Every mutation happens with the executor as the
// only concurrent actor besides the timer goroutines that fire retries and
// final timeouts, so the table has its own mutex independent of the
// executor's serialization.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint16]*pendingCommand
}

func (t *pendingTable) init() {
	t.entries = make(map[uint16]*pendingCommand)
}

// register starts tracking a new command. timeout/maxRetries come from the
// Timing configuration for the command's AECP/ACMP subkind; resend is
// invoked to retransmit the original frame when a retry fires, and exec is
// used so callback delivery and timer-driven retries are both serialized
// on the Protocol Interface's single dispatch queue.
func (t *pendingTable) register(exec *executor.Executor, op string, seq uint16, timeout time.Duration, maxRetries int, resend func() error, onResponse ResponseCallback) {
	pc := &pendingCommand{
		sequenceID: seq,
		onResponse: onResponse,
		backoff:    &backoff.Backoff{Min: timeout, Max: timeout, Factor: 1, Jitter: false},
		maxRetries: maxRetries,
		timeout:    timeout,
		resend:     resend,
	}
	t.mu.Lock()
	t.entries[seq] = pc
	t.mu.Unlock()

	pc.timer = time.AfterFunc(timeout, func() {
		_ = exec.Submit(func() { t.onTimerFired(op, seq) })
	})
}

// onTimerFired runs on the executor: either resend the command (more
// retries remain) or fail it with a TimeoutError.
func (t *pendingTable) onTimerFired(op string, seq uint16) {
	t.mu.Lock()
	pc, ok := t.entries[seq]
	if !ok {
		t.mu.Unlock()
		return
	}
	if pc.attempts >= pc.maxRetries {
		delete(t.entries, seq)
		t.mu.Unlock()
		elapsed := pc.backoff.Duration() * time.Duration(pc.attempts+1)
		pc.onResponse(nil, avdeccerrors.NewTimeoutError(op, elapsed, nil))
		return
	}
	pc.attempts++
	next := pc.backoff.Duration()
	t.mu.Unlock()

	if err := pc.resend(); err != nil {
		t.mu.Lock()
		delete(t.entries, seq)
		t.mu.Unlock()
		pc.onResponse(nil, err)
		return
	}
	pc.timer.Reset(next)
}

// resolve completes a pending command on receipt of its correlated
// response. Returns false if no such sequence ID was outstanding (a stray
// or duplicate response).
func (t *pendingTable) resolve(seq uint16, response []byte) bool {
	t.mu.Lock()
	pc, ok := t.entries[seq]
	if ok {
		delete(t.entries, seq)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	pc.timer.Stop()
	pc.onResponse(response, nil)
	return true
}

// keepAlive resets a pending command's timer on receipt of an InProgress
// response (spec §4.E step 4(b): "reset timer, do not consume the retry
// budget"). The command stays pending for the real result; attempts is
// left untouched and onResponse is not invoked. Returns false if no such
// sequence ID was outstanding.
func (t *pendingTable) keepAlive(seq uint16) bool {
	t.mu.Lock()
	pc, ok := t.entries[seq]
	t.mu.Unlock()
	if !ok {
		return false
	}
	pc.timer.Reset(pc.timeout)
	return true
}

// abortAll fails every outstanding command with AbortedError, used when
// the Protocol Interface is closed while commands are still in flight
// (spec §4.C). Callbacks are still delivered on exec, matching every other
// callback invocation, even though Close itself may be called from any
// goroutine.
func (t *pendingTable) abortAll(exec *executor.Executor, op string) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint16]*pendingCommand)
	t.mu.Unlock()

	for _, pc := range entries {
		pc.timer.Stop()
		pc := pc
		if err := exec.Submit(func() { pc.onResponse(nil, avdeccerrors.NewAbortedError(op)) }); err != nil {
			// Executor already shutting down: invoke directly so the
			// callback still fires exactly once rather than never.
			pc.onResponse(nil, avdeccerrors.NewAbortedError(op))
		}
	}
}
