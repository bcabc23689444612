package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowbase/orchestrator/graph/emit"
	"github.com/flowbase/orchestrator/graph/store"
)

// Engine is the compiled workflow graph: a node table, its conditional
// edges, and the checkpoint/emit/metrics plumbing the execution loop needs.
// It replaces the teacher's concurrent frontier-scheduler Engine[S] with the
// simpler sequential, single-writer-per-thread loop spec §4.6 describes —
// there is no fan-out to schedule within a run, so that machinery is cut
// (see DESIGN.md).
type Engine struct {
	mu    sync.RWMutex
	nodes map[string]Node
	// policies holds the optional per-node NodePolicy keyed by node ID.
	policies  map[string]*NodePolicy
	edges     []Edge
	startNode string

	reducer Reducer
	store   store.Store
	emitter emit.Emitter

	opts Options

	// threadLocks implements the per-thread advisory lock (spec §4.6
	// single-writer invariant). One *sync.Mutex per thread, created
	// lazily; threadLocks itself is never removed from, so long-lived
	// deployments should bound thread count externally (TTL'd checkpoint
	// cleanup naturally retires old locks' usefulness, if not the map
	// entries themselves).
	threadLocks sync.Map // map[string]*sync.Mutex

	// lockWaitTimeout bounds how long Run/Resume waits for a busy thread's
	// advisory lock before returning ErrBusy.
	lockWaitTimeout time.Duration
}

// New constructs an Engine. reducer merges node deltas into the running
// WorkflowState; st persists checkpoints; emitter receives node/run
// lifecycle events.
func New(reducer Reducer, st store.Store, emitter emit.Emitter, options ...Option) *Engine {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	return &Engine{
		nodes:           make(map[string]Node),
		policies:        make(map[string]*NodePolicy),
		reducer:         reducer,
		store:           st,
		emitter:         emitter,
		opts:            opts,
		lockWaitTimeout: 5 * time.Second,
	}
}

// Add registers a node under nodeID. policy may be nil to use the engine's
// DefaultNodeTimeout and no retries.
func (e *Engine) Add(nodeID string, node Node, policy *NodePolicy) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil", Code: "NIL_NODE"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nodes[nodeID] = node
	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the default entry node used by Run when the caller doesn't
// override it.
func (e *Engine) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[nodeID]; !ok && nodeID != EndNode {
		return &EngineError{Message: "start node must be registered before StartAt", Code: "UNKNOWN_NODE"}
	}
	e.startNode = nodeID
	return nil
}

// Connect declares a conditional edge from -> to. when may be nil for an
// unconditional edge (spec §4.6 edge table).
func (e *Engine) Connect(from, to string, when Predicate) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge{From: from, To: to, When: when})
	return nil
}

// RunResult is the outcome of a completed or paused run.
type RunResult struct {
	State             WorkflowState
	Terminal          bool
	Interrupted       bool
	ApprovalRequestID string
}

// ResumeTicket names a checkpoint to resume from and the approval decision
// to apply to it (spec §4.6 "Resume protocol").
type ResumeTicket struct {
	ThreadID     string
	CheckpointID string
	Decision     ApprovalStatus
}

// Run starts a new execution on threadID at entryNode (or the engine's
// configured start node if entryNode is ""), from a caller-supplied initial
// WorkflowState.
func (e *Engine) Run(ctx context.Context, threadID string, initial WorkflowState, entryNode string) (RunResult, error) {
	unlock, err := e.lockThread(ctx, threadID)
	if err != nil {
		return RunResult{}, err
	}
	defer unlock()

	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()
	if entryNode != "" {
		start = entryNode
	}
	if start == "" {
		return RunResult{}, &EngineError{Message: "no start node configured", Code: "NO_START_NODE"}
	}

	initial.ThreadID = threadID

	parentID := ""
	if latest, err := e.store.GetLatest(ctx, threadID); err == nil {
		parentID = latest.CheckpointID
	} else if !errors.Is(err, store.ErrNotFound) {
		return RunResult{}, err
	}

	seed := Checkpoint{
		ThreadID:           threadID,
		CheckpointID:       nextCheckpointID(parentID),
		ParentCheckpointID: parentID,
		NodeThatJustRan:    "",
		State:              initial,
		CreatedAt:          Now(),
	}
	if err := e.store.Put(ctx, seed); err != nil {
		return RunResult{}, err
	}

	return e.loop(ctx, threadID, initial, start, seed.CheckpointID)
}

// Resume applies a ResumeTicket's decision and re-enters the execution loop
// (spec §4.6 "Resume protocol").
func (e *Engine) Resume(ctx context.Context, ticket ResumeTicket) (RunResult, error) {
	unlock, err := e.lockThread(ctx, ticket.ThreadID)
	if err != nil {
		return RunResult{}, err
	}
	defer unlock()

	latest, err := e.store.GetLatest(ctx, ticket.ThreadID)
	if err != nil {
		return RunResult{}, err
	}
	if latest.CheckpointID != ticket.CheckpointID {
		return RunResult{}, ErrStaleResume
	}

	pendingAgent := latest.State.PendingAgent
	resumed := latest.State.ClearApproval(ticket.Decision)

	if ticket.Decision == ApprovalRejected {
		msg := NewAssistantMessage("Operation rejected; returning to supervisor.")
		resumed.Messages = append(append([]Message{}, resumed.Messages...), msg)
	}

	next := "supervisor"
	if ticket.Decision == ApprovalApproved && pendingAgent != "" {
		next = pendingAgent
	}

	cp := Checkpoint{
		ThreadID:           ticket.ThreadID,
		CheckpointID:       nextCheckpointID(latest.CheckpointID),
		ParentCheckpointID: latest.CheckpointID,
		NodeThatJustRan:    "approval",
		State:              resumed,
		CreatedAt:          Now(),
	}
	if err := e.store.Put(ctx, cp); err != nil {
		return RunResult{}, err
	}

	return e.loop(ctx, ticket.ThreadID, resumed, next, cp.CheckpointID)
}

// loop implements spec §4.6's 8-step execution loop.
func (e *Engine) loop(ctx context.Context, threadID string, state WorkflowState, currentNode, parentCheckpointID string) (RunResult, error) {
	runHops := 0
	nodeHops := 0
	lastNode := ""

	for {
		if currentNode == EndNode {
			e.emitEvent(threadID, "", 0, "run_completed", "workflow reached end node", nil)
			return RunResult{State: state, Terminal: true}, nil
		}

		if err := ctx.Err(); err != nil {
			return RunResult{State: state}, ErrCancelled
		}

		if currentNode == lastNode {
			nodeHops++
		} else {
			nodeHops = 1
			lastNode = currentNode
		}
		runHops++

		if e.opts.PerRunHopLimit > 0 && runHops > e.opts.PerRunHopLimit {
			e.emitEvent(threadID, currentNode, runHops, "run_failed", "per-run hop limit exceeded", nil)
			return RunResult{State: state}, ErrHopLimitExceeded
		}
		if e.opts.PerNodeHopLimit > 0 && nodeHops > e.opts.PerNodeHopLimit {
			e.emitEvent(threadID, currentNode, runHops, "run_failed", "per-node hop limit exceeded", nil)
			return RunResult{State: state}, ErrHopLimitExceeded
		}

		e.mu.RLock()
		node, ok := e.nodes[currentNode]
		policy := e.policies[currentNode]
		e.mu.RUnlock()
		if !ok {
			return RunResult{State: state}, ErrInvalidRoute
		}

		e.emitEvent(threadID, currentNode, runHops, "node_started", "node started", nil)
		started := time.Now()

		pendingCheckpointID := nextCheckpointID(parentCheckpointID)
		nodeCtx := withCheckpointID(ctx, pendingCheckpointID)
		var result NodeResult
		var err error
		runNode := func(int) error {
			result, err = executeNodeWithTimeout(nodeCtx, node, currentNode, state, policy, e.opts.DefaultNodeTimeout)
			if err != nil {
				return err
			}
			return result.Err
		}
		if policy != nil && policy.Retry.MaxAttempts > 1 {
			_ = Retry(ctx, policy.Retry, runNode)
		} else {
			_ = runNode(0)
		}
		duration := time.Since(started)

		if err != nil {
			e.opts.Metrics.RecordNodeInvocation(currentNode, "timeout")
			e.opts.Metrics.RecordNodeDuration(currentNode, duration)
			e.emitEvent(threadID, currentNode, runHops, "run_failed", err.Error(), nil)
			return RunResult{State: state}, &NodeFailed{NodeID: currentNode, Cause: err}
		}

		if result.Err != nil {
			e.opts.Metrics.RecordNodeInvocation(currentNode, "error")
			e.opts.Metrics.RecordNodeDuration(currentNode, duration)
			e.emitEvent(threadID, currentNode, runHops, "run_failed", result.Err.Error(), nil)
			return RunResult{State: state}, &NodeFailed{NodeID: currentNode, Cause: result.Err}
		}

		e.opts.Metrics.RecordNodeInvocation(currentNode, "success")
		e.opts.Metrics.RecordNodeDuration(currentNode, duration)

		merged := e.reducer(state, result.Delta)
		merged.ThreadID = threadID

		e.emitEvent(threadID, currentNode, runHops, "node_completed", "node completed", map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		})

		cp := Checkpoint{
			ThreadID:           threadID,
			CheckpointID:       pendingCheckpointID,
			ParentCheckpointID: parentCheckpointID,
			NodeThatJustRan:    currentNode,
			State:              merged,
			CreatedAt:          Now(),
		}
		if err := e.store.Put(ctx, cp); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return RunResult{State: merged}, ErrBusy
			}
			return RunResult{State: merged}, err
		}
		parentCheckpointID = cp.CheckpointID
		state = merged

		if result.Route.Interrupted {
			e.emitEvent(threadID, currentNode, runHops, "approval_requested", "workflow interrupted pending approval", map[string]interface{}{
				"approval_request_id": result.Route.ApprovalRequestID,
			})
			return RunResult{State: state, Interrupted: true, ApprovalRequestID: result.Route.ApprovalRequestID}, nil
		}

		if result.Route.Terminal {
			e.emitEvent(threadID, currentNode, runHops, "run_completed", "workflow terminated", nil)
			return RunResult{State: state, Terminal: true}, nil
		}

		if result.Route.To != "" {
			currentNode = result.Route.To
			continue
		}

		next, err := e.evaluateEdges(currentNode, state)
		if err != nil {
			return RunResult{State: state}, err
		}
		currentNode = next
	}
}

// evaluateEdges finds the first matching outgoing edge for fromNode,
// evaluating predicates in registration order. A node's own NodeResult.Route
// always takes precedence over this and is checked first by loop.
func (e *Engine) evaluateEdges(fromNode string, state WorkflowState) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		if edge.When == nil || edge.When(state) {
			return edge.To, nil
		}
	}
	return "", ErrInvalidRoute
}

func (e *Engine) emitEvent(threadID, nodeID string, step int, eventType, msg string, meta map[string]interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		ThreadID: threadID,
		NodeID:   nodeID,
		Step:     step,
		Type:     eventType,
		Msg:      msg,
		Meta:     meta,
	})
}

// lockThread acquires the advisory per-thread lock, waiting up to
// e.lockWaitTimeout before returning ErrBusy.
func (e *Engine) lockThread(ctx context.Context, threadID string) (func(), error) {
	lockVal, _ := e.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := lockVal.(*sync.Mutex)

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, e.lockWaitTimeout)
	defer cancel()

	select {
	case <-acquired:
		return mu.Unlock, nil
	case <-waitCtx.Done():
		// The goroutine above may still acquire mu after the wait gave up;
		// release it as soon as it does so the thread is not left locked.
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, ErrBusy
	}
}
