// Package router implements the Intent/Command Router (C7): slash-command
// parsing and ask-vs-task intent classification for an inbound user
// message (spec §4.7).
package router

import (
	"regexp"
	"strings"

	"github.com/flowbase/orchestrator/graph"
)

// IntentType classifies an inbound message, mirroring spec §3's Intent
// record.
type IntentType string

const (
	IntentTaskSubmission   IntentType = "task_submission"
	IntentGeneralQuery     IntentType = "general_query"
	IntentStatusQuery      IntentType = "status_query"
	IntentClarification    IntentType = "clarification"
	IntentApprovalDecision IntentType = "approval_decision"
)

// Intent is the result of classifying an inbound message (spec §3).
type Intent struct {
	Type            IntentType
	Confidence      float64
	TaskType        string
	Reasoning       string
	TaskDescription string
}

// Command is a recognised slash command (spec §4.7 stage 1).
type Command string

const (
	CommandExecute Command = "/execute"
	CommandHelp    Command = "/help"
	CommandStatus  Command = "/status"
	CommandCancel  Command = "/cancel"
)

var recognisedCommands = map[string]Command{
	"/execute": CommandExecute,
	"/help":    CommandHelp,
	"/status":  CommandStatus,
	"/cancel":  CommandCancel,
}

// Ask-mode and agent-mode confidence thresholds a task_submission
// classification must clear (spec §4.7).
const (
	askModeThreshold   = 0.85
	agentModeThreshold = 0.60
)

var (
	questionPattern   = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|can you|could you|is it|are you)\b`)
	greetingPattern   = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you)\b`)
	imperativePattern = regexp.MustCompile(`(?i)^(implement|add|fix|deploy|remove|refactor|update|create|build|migrate|write|delete)\b`)
)

// Classify runs the two-stage classification of spec §4.7 over a trimmed
// inbound message under the given session mode.
//
// This implementation resolves the spec's Open Question on combining the
// lexical pre-filter with an LLM-based classifier (see DESIGN.md "Open
// Questions" #1): the lexical pre-filter is canonical and no LLM round-trip
// is made purely to classify intent. Every pattern class is assigned a
// fixed confidence, and the session-mode threshold gates the final
// task_submission decision.
func Classify(message string, mode graph.SessionMode) Intent {
	trimmed := strings.TrimSpace(message)

	if cmd, args, ok := parseCommand(trimmed); ok {
		return classifyCommand(cmd, args)
	}

	return classifyLexical(trimmed, mode)
}

// parseCommand implements stage 1: if the trimmed message begins with "/",
// split on the first whitespace. An unrecognised slash prefix is not a
// command at all — it falls through to stage 2 as plain text (spec §4.7).
func parseCommand(trimmed string) (Command, string, bool) {
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	fields := strings.SplitN(trimmed, " ", 2)
	cmd, ok := recognisedCommands[strings.ToLower(fields[0])]
	if !ok {
		return "", "", false
	}
	args := ""
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}
	return cmd, args, true
}

func classifyCommand(cmd Command, args string) Intent {
	switch cmd {
	case CommandExecute:
		return Intent{
			Type:            IntentTaskSubmission,
			Confidence:      1.0,
			TaskDescription: args,
			Reasoning:       "explicit /execute command",
		}
	case CommandStatus:
		return Intent{Type: IntentStatusQuery, Confidence: 1.0, Reasoning: "explicit /status command"}
	case CommandHelp:
		return Intent{Type: IntentGeneralQuery, Confidence: 1.0, Reasoning: "explicit /help command"}
	case CommandCancel:
		return Intent{Type: IntentApprovalDecision, Confidence: 1.0, Reasoning: "explicit /cancel command"}
	default:
		return Intent{Type: IntentGeneralQuery, Confidence: 1.0}
	}
}

// classifyLexical implements stage 2's pattern pre-filter, with confidences
// fixed per the Open Question decision above.
func classifyLexical(trimmed string, mode graph.SessionMode) Intent {
	threshold := agentModeThreshold
	if mode == graph.SessionAsk {
		threshold = askModeThreshold
	}

	switch {
	case greetingPattern.MatchString(trimmed), questionPattern.MatchString(trimmed):
		return Intent{Type: IntentGeneralQuery, Confidence: 0.95, Reasoning: "greeting or question form"}

	case imperativePattern.MatchString(trimmed):
		confidence := 0.90
		if confidence < threshold {
			return Intent{Type: IntentGeneralQuery, Confidence: confidence, Reasoning: "imperative verb below session-mode threshold"}
		}
		return Intent{
			Type:            IntentTaskSubmission,
			Confidence:      confidence,
			TaskDescription: trimmed,
			Reasoning:       "imperative verb prefix",
		}

	case len(trimmed) < 40:
		return Intent{Type: IntentGeneralQuery, Confidence: 0.55, Reasoning: "short message, low confidence"}

	default:
		return Intent{Type: IntentGeneralQuery, Confidence: 0.55, Reasoning: "no lexical match, defaulting to query"}
	}
}
