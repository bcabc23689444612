package emit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/orchestrator/graph/emit"
)

func TestLogEmitterJSONMode(t *testing.T) {
	var buf bytes.Buffer
	e := emit.NewLogEmitter(&buf, true)

	e.Emit(emit.Event{ThreadID: "t1", NodeID: "supervisor", Type: "node_start", Msg: "node_start"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "t1", decoded["thread_id"])
}

func TestLogEmitterTextMode(t *testing.T) {
	var buf bytes.Buffer
	e := emit.NewLogEmitter(&buf, false)

	e.Emit(emit.Event{ThreadID: "t1", NodeID: "supervisor", Msg: "node_start"})

	assert.Contains(t, buf.String(), "node_start")
	assert.Contains(t, buf.String(), "thread_id=t1")
}

func TestNullEmitterDiscardsEvents(t *testing.T) {
	e := emit.NewNullEmitter()
	e.Emit(emit.Event{ThreadID: "t1"})
	require.NoError(t, e.Flush(context.Background()))
}

func TestBufferedEmitterHistoryAndFilter(t *testing.T) {
	e := emit.NewBufferedEmitter()

	e.Emit(emit.Event{ThreadID: "t1", NodeID: "supervisor", Msg: "node_start", Step: 1})
	e.Emit(emit.Event{ThreadID: "t1", NodeID: "feature_dev", Msg: "node_start", Step: 2})
	e.Emit(emit.Event{ThreadID: "t2", NodeID: "supervisor", Msg: "node_start", Step: 1})

	all := e.GetHistory("t1")
	assert.Len(t, all, 2)

	filtered := e.GetHistoryWithFilter("t1", emit.HistoryFilter{NodeID: "feature_dev"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "feature_dev", filtered[0].NodeID)

	e.Clear("t1")
	assert.Empty(t, e.GetHistory("t1"))
	assert.Len(t, e.GetHistory("t2"), 1)
}
