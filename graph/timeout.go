package graph

import (
	"context"
	"fmt"
	"time"
)

// getNodeTimeout determines the timeout duration for a node based on
// precedence: NodePolicy.Timeout (per-node override), then defaultTimeout
// (engine-wide default), then 0 (no timeout).
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout wraps node execution with timeout enforcement,
// applying getNodeTimeout's precedence before invoking node.Run.
func executeNodeWithTimeout(
	ctx context.Context,
	node Node,
	nodeID string,
	state WorkflowState,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) (NodeResult, error) {
	timeout := getNodeTimeout(policy, defaultTimeout)

	if timeout == 0 {
		return node.Run(ctx, state), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return result, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}

	return result, nil
}
