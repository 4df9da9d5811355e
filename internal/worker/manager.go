package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"voxassist/internal/models"
	"voxassist/internal/service/assistant"
)

const taskQueueLen = 16

// ErrBusy is returned when a user's command queue is full.
var ErrBusy = errors.New("assistant is busy, please retry")

var errWorkerStopped = errors.New("assistant worker stopped")

// Interpreter is the oracle boundary consumed by workers.
type Interpreter interface {
	Interpret(ctx context.Context, command, assistantName, userName string, nowLocal time.Time) string
}

// AskRequest carries one voice command through the pipeline.
type AskRequest struct {
	Context context.Context
	UserID  int64
	Command string
}

type askReturn struct {
	intent models.Intent
	err    error
}

type askTask struct {
	req      AskRequest
	resultCh chan askReturn
}

type workerState struct {
	taskCh chan askTask
	stopCh chan struct{}
	doneCh chan struct{} // closed after the worker goroutine drains and exits
}

// Manager runs one worker goroutine per active user so commands from
// the same user execute strictly in submission order, while different
// users proceed concurrently. Idle workers shut down after idleTimeout.
type Manager struct {
	assistant *assistant.Service
	oracle    Interpreter

	mu          sync.Mutex
	workers     map[int64]*workerState
	idleTimeout time.Duration
}

const defaultIdleTimeout = 10 * time.Minute

// NewManager constructs a Manager over the assistant service and oracle client.
func NewManager(asst *assistant.Service, oracle Interpreter, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Manager{
		assistant:   asst,
		oracle:      oracle,
		workers:     make(map[int64]*workerState),
		idleTimeout: idleTimeout,
	}
}

// Ask queues the command on the user's worker and waits for the final
// intent. A task that races worker shutdown (idle timeout or ResetUser)
// is resubmitted against a fresh worker so callers never observe the
// race. Returns ErrBusy when the user's queue is full.
func (m *Manager) Ask(req AskRequest) (models.Intent, error) {
	for attempt := 0; attempt < 3; attempt++ {
		intent, err := m.submit(req)
		if !errors.Is(err, errWorkerStopped) {
			return intent, err
		}
	}
	return models.Intent{}, ErrBusy
}

func (m *Manager) submit(req AskRequest) (models.Intent, error) {
	state := m.ensureWorker(req.UserID)

	resultCh := make(chan askReturn, 1)
	select {
	case state.taskCh <- askTask{req: req, resultCh: resultCh}:
	default:
		return models.Intent{}, ErrBusy
	}

	select {
	case ret := <-resultCh:
		return ret.intent, ret.err
	case <-state.doneCh:
		// The worker exited while the task was in flight. A drained task
		// still gets an answer; one that slipped past the drain does not.
		select {
		case ret := <-resultCh:
			return ret.intent, ret.err
		default:
			return models.Intent{}, errWorkerStopped
		}
	}
}

// ResetUser stops the user's worker, typically on logout.
func (m *Manager) ResetUser(userID int64) {
	m.mu.Lock()
	if state, ok := m.workers[userID]; ok {
		delete(m.workers, userID)
		close(state.stopCh)
	}
	m.mu.Unlock()
}

func (m *Manager) ensureWorker(userID int64) *workerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.workers[userID]; ok {
		return state
	}

	state := &workerState{
		taskCh: make(chan askTask, taskQueueLen),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	m.workers[userID] = state
	go m.runWorker(userID, state)
	return state
}

func (m *Manager) runWorker(userID int64, state *workerState) {
	defer func() {
		m.mu.Lock()
		if current, ok := m.workers[userID]; ok && current == state {
			delete(m.workers, userID)
		}
		m.mu.Unlock()
		drainTasks(state)
		close(state.doneCh)
	}()

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-state.stopCh:
			return
		case task := <-state.taskCh:
			m.handleAsk(task)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTimeout)
		case <-idle.C:
			log.Printf("assistant worker for user %d idle, stopping", userID)
			return
		}
	}
}

// drainTasks answers tasks that raced with worker shutdown; a retry
// will spin up a fresh worker.
func drainTasks(state *workerState) {
	for {
		select {
		case task := <-state.taskCh:
			task.resultCh <- askReturn{err: errWorkerStopped}
		default:
			return
		}
	}
}

// handleAsk runs one interpret -> normalize -> dispatch cycle.
func (m *Manager) handleAsk(task askTask) {
	req := task.req
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	user, err := m.assistant.GetUser(ctx, req.UserID)
	if err != nil {
		task.resultCh <- askReturn{err: err}
		return
	}

	rawText := m.oracle.Interpret(ctx, req.Command, user.AssistantName, user.UserName, time.Now())
	intent := assistant.Normalize(rawText, req.Command)

	final, err := m.assistant.Dispatch(ctx, user, req.Command, intent)
	task.resultCh <- askReturn{intent: final, err: err}
}
