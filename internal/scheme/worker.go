package scheme

import (
	"sync"

	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/statecodec"
)

// commandKind is one of the five batch-worker operations named in spec.md
// §9's design note, replacing the original's spin-waiting native thread
// with a goroutine that blocks on a channel receive instead.
type commandKind int

const (
	cmdStartBatch commandKind = iota
	cmdSetTarget
	cmdImport
	cmdRollback
	cmdStop
)

type command struct {
	kind commandKind

	// StartBatch
	wallClock float64

	// SetTarget
	targetTime float64

	// Rollback
	rollbackFrom, rollbackTo float64
	snapshot                 []byte

	reply chan reply
}

// reply carries the post-command scalars back to the caller, the channel
// counterpart of the original's host-mirrored scalars the caller thread
// read directly once the worker went idle.
type reply struct {
	err             error
	currentTime     float64
	currentTimestep float64
	batchSuccessful uint32
	batchSkipped    uint32
}

// worker is the background batch loop. Exactly one goroutine owns it;
// every other goroutine communicates with it only by sending on cmdCh,
// never by touching device state directly. The host-side API methods
// (SetTargetTime, RunSimulation, ImportLinks, Rollback) send a command and
// then block until the worker replies, and Cleanup blocks until the worker
// has exited; none of them returns while its command is still in flight.
type worker struct {
	s     *Scheme
	cmdCh chan command
	done  chan struct{}

	mu      sync.Mutex
	running bool
}

const commandQueueDepth = 4

func newWorker(s *Scheme) *worker {
	w := &worker{
		s:     s,
		cmdCh: make(chan command, commandQueueDepth),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *worker) setRunning(v bool) {
	w.mu.Lock()
	w.running = v
	w.mu.Unlock()
}

func (w *worker) loop() {
	defer close(w.done)
	for cmd := range w.cmdCh {
		w.setRunning(true)
		err := w.handle(cmd)
		w.setRunning(false)

		if cmd.reply != nil {
			w.s.mu.Lock()
			r := reply{
				err:             err,
				currentTime:     w.s.currentTime,
				currentTimestep: w.s.currentTimestep,
				batchSuccessful: w.s.batchSuccessful,
				batchSkipped:    w.s.batchSkipped,
			}
			w.s.mu.Unlock()
			cmd.reply <- r
		}

		if cmd.kind == cmdStop {
			return
		}
	}
}

func (w *worker) handle(cmd command) error {
	switch cmd.kind {
	case cmdSetTarget:
		return w.setTarget(cmd.targetTime)
	case cmdImport:
		return w.importLinks()
	case cmdRollback:
		return w.rollback(cmd.rollbackFrom, cmd.rollbackTo, cmd.snapshot)
	case cmdStartBatch:
		return w.runBatch(cmd.wallClock)
	case cmdStop:
		return nil
	default:
		return nil
	}
}

// setTarget implements the original's "have we been asked to update the
// target time" branch (CSchemeGodunov.cpp's Threaded_runBatch).
func (w *worker) setTarget(t float64) error {
	s := w.s
	p := s.dom.Descriptor().Precision

	s.mu.Lock()
	s.targetTime = t
	s.cellStatesSynced = false
	s.iterationsSinceSync = 0
	dt := s.currentTimestep
	currentTime := s.currentTime
	s.mu.Unlock()

	s.targetTimeBuf.SetHost(statecodec.EncodeOne(t, p))
	if err := s.targetTimeBuf.QueueWriteAll(); err != nil {
		return err
	}
	s.dev.QueueBarrier()

	if dt <= 0 && s.opts.SyncMethod == SyncForecast {
		if err := s.kTimestepReduction.ScheduleExecution(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
		if err := s.kTimestepUpdate.ScheduleExecution(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
	}

	if currentTime+dt > t+1e-5 {
		newDt := t - currentTime
		s.mu.Lock()
		s.currentTimestep = newDt
		s.mu.Unlock()
		s.timestepBuf.SetHost(statecodec.EncodeOne(newDt, p))
		if err := s.timestepBuf.QueueWriteAll(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
	}
	return nil
}

// importLinks implements the multi-domain link-import branch. The
// cross-domain push/pull exchange itself runs in domainset.Set.Import
// before this command is sent; what remains here is that an import moves
// lastSyncTime to the current clock, resets the batch counters and, in
// forecast mode, forces a fresh timestep estimate before the next
// iteration.
func (w *worker) importLinks() error {
	s := w.s
	s.mu.Lock()
	s.lastSyncTime = s.currentTime
	s.iterationsSinceSync = 0
	s.mu.Unlock()

	if err := s.kResetCounters.ScheduleExecution(); err != nil {
		return err
	}
	s.dev.QueueBarrier()

	if s.opts.SyncMethod == SyncForecast {
		if err := s.kTimestepReduction.ScheduleExecution(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
		if err := s.kTimestepUpdate.ScheduleExecution(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
	}
	return nil
}

// rollback implements spec.md §4.5.8. snapshot, when non-nil, is written
// into both cell-state buffers before the time buffers are rewound; the
// caller (Scheme.Rollback) supplies it from the last checkpoint captured
// by MarkSynced.
func (w *worker) rollback(t0, t1 float64, snapshot []byte) error {
	s := w.s
	if err := s.dev.BlockUntilFinished(); err != nil {
		return err
	}
	p := s.dom.Descriptor().Precision

	s.mu.Lock()
	s.iterationsSinceSync = 0
	s.currentTime = t0
	s.targetTime = t1
	s.mu.Unlock()

	if snapshot != nil {
		s.stateA.SetHost(snapshot)
		s.stateB.SetHost(snapshot)
	}
	s.timeBuf.SetHost(statecodec.EncodeOne(t0, p))
	s.targetTimeBuf.SetHost(statecodec.EncodeOne(t1, p))

	for _, b := range []*device.Buffer{s.timeBuf, s.targetTimeBuf, s.stateA, s.stateB} {
		if err := b.QueueWriteAll(); err != nil {
			return err
		}
	}

	if s.opts.TimestepMode == TimestepCFL {
		if err := s.kTimestepReduction.ScheduleExecution(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
	}
	if s.opts.SyncMethod != SyncTimestep {
		if err := s.kTimestepUpdate.ScheduleExecution(); err != nil {
			return err
		}
		s.dev.QueueBarrier()
	}
	if err := s.kResetCounters.ScheduleExecution(); err != nil {
		return err
	}
	s.dev.QueueBarrier()
	return s.dev.Flush()
}

// runBatch implements spec.md §4.5.5's per-batch body: retune the queue
// amount from the previous batch's wall duration, schedule iterations,
// read back the scalars, block, and mirror them to the host.
func (w *worker) runBatch(wallClock float64) error {
	s := w.s
	p := s.dom.Descriptor().Precision

	s.mu.Lock()
	if wallClock > 1e-5 && s.opts.SyncMethod == SyncForecast {
		s.queueAmount = nextQueueAmount(s.queueAmount, wallClock, s.batchSuccessful, s.previousSuccessful)
	}
	queueAmount := s.queueAmount
	if s.opts.SyncMethod == SyncTimestep {
		queueAmount = 1
	}
	itersSinceSync := s.iterationsSinceSync
	currentTime := s.currentTime
	target := s.targetTime
	s.mu.Unlock()

	if itersSinceSync < s.opts.RollbackLimit && currentTime < target {
		for k := 0; k < queueAmount; k++ {
			if err := s.scheduleIteration(); err != nil {
				return err
			}
			s.mu.Lock()
			s.iterationsSinceSync++
			s.mu.Unlock()
		}
		s.mu.Lock()
		s.cellStatesSynced = false
		s.mu.Unlock()
	}

	for _, b := range []*device.Buffer{s.timestepBuf, s.timeBuf, s.batchSkippedBuf, s.batchSuccessfulBuf, s.batchTimestepsBuf} {
		if err := b.QueueReadAll(); err != nil {
			return err
		}
	}

	if err := s.dev.Flush(); err != nil {
		return err
	}
	if err := s.dev.BlockUntilFinished(); err != nil {
		return err
	}

	newTime := statecodec.DecodeOne(s.timeBuf.Host(), p)
	newDt := statecodec.DecodeOne(s.timestepBuf.Host(), p)
	newSuccessful := statecodec.DecodeUint32(s.batchSuccessfulBuf.Host())
	newSkipped := statecodec.DecodeUint32(s.batchSkippedBuf.Host())
	newBatchTimesteps := statecodec.DecodeOne(s.batchTimestepsBuf.Host(), p)

	s.mu.Lock()
	s.previousSuccessful = s.batchSuccessful
	s.currentTime = newTime
	s.currentTimestep = newDt
	s.batchSuccessful = newSuccessful
	s.batchSkipped = newSkipped
	s.batchTimesteps = newBatchTimesteps
	s.mu.Unlock()
	return nil
}

// send dispatches cmd and blocks for its reply.
func (s *Scheme) send(cmd command) reply {
	cmd.reply = make(chan reply, 1)
	s.worker.cmdCh <- cmd
	return <-cmd.reply
}

// SetTargetTime requests a new target time (spec.md §4.5.6).
func (s *Scheme) SetTargetTime(t float64) error {
	r := s.send(command{kind: cmdSetTarget, targetTime: t})
	return r.err
}

// RunSimulation requests one batch, retuning the queue amount from
// wallClock (the measured duration since the previous batch was
// dispatched; pass 0 to skip retuning, e.g. the very first batch).
func (s *Scheme) RunSimulation(wallClock float64) error {
	r := s.send(command{kind: cmdStartBatch, wallClock: wallClock})
	return r.err
}

// ImportLinks requests the link-import branch.
func (s *Scheme) ImportLinks() error {
	r := s.send(command{kind: cmdImport})
	return r.err
}

// Rollback requests a rollback to the last checkpoint captured by
// MarkSynced, retargeting at newTarget (spec.md §4.5.8).
func (s *Scheme) Rollback(newTarget float64) error {
	t0, snapshot := s.Checkpoint()
	r := s.send(command{kind: cmdRollback, rollbackFrom: t0, rollbackTo: newTarget, snapshot: snapshot})
	return r.err
}

// MarkSynced captures the current cell-state buffer as the rollback
// checkpoint and advances lastSyncTime to the current clock. Call once the
// model has confirmed IsSimulationSyncReady.
func (s *Scheme) MarkSynced() error {
	states, err := s.ReadBackCellStates()
	if err != nil {
		return err
	}
	p := s.dom.Descriptor().Precision
	snap := statecodec.EncodeCellStates(states, p)

	s.mu.Lock()
	s.lastSyncTime = s.currentTime
	s.checkpointState = snap
	s.cellStatesSynced = true
	s.mu.Unlock()
	return nil
}

// Checkpoint returns the last rollback checkpoint (lastSyncTime, snapshot).
func (s *Scheme) Checkpoint() (float64, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncTime, s.checkpointState
}

// ProposeSyncPoint is the public entry point for §4.5.6's target-time
// proposal, used by the model controller's outer loop.
func (s *Scheme) ProposeSyncPoint() float64 { return s.proposeSyncPoint() }

// Cleanup stops the background worker and waits for it to exit, mirroring
// the original's join-style shutdown (spec.md §5).
func (s *Scheme) Cleanup() {
	if s.worker == nil {
		return
	}
	s.worker.cmdCh <- command{kind: cmdStop}
	<-s.worker.done
}
