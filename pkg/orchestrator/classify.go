package orchestrator

import (
	"fmt"
	"strings"
)

// Classification is the ANALYZING state's output, stored on metadata.
type Classification struct {
	TaskType         string  `json:"task_type"`
	RecommendedModel string  `json:"recommended_model"`
	Confidence       float64 `json:"confidence"`
}

// taskTypeKeywords maps task types to their trigger words, checked in
// declaration order with first match winning.
var taskTypeKeywords = []struct {
	taskType string
	model    string
	words    []string
}{
	{"bugfix", "pro", []string{"fix", "bug", "broken", "crash", "error", "regression"}},
	{"testing", "shadow", []string{"test", "coverage", "assert"}},
	{"refactor", "pro", []string{"refactor", "cleanup", "restructure", "rename"}},
	{"documentation", "shadow", []string{"document", "docs", "readme", "comment"}},
	{"security", "pro", []string{"security", "vulnerability", "cve", "auth"}},
	{"feature", "pro", []string{"add", "implement", "create", "build", "support"}},
}

// classifyTask maps a task description onto a task type and model tier.
// Unmatched tasks default to a low-confidence generic feature.
func classifyTask(task string) Classification {
	lower := strings.ToLower(task)
	for _, group := range taskTypeKeywords {
		for _, word := range group.words {
			if strings.Contains(lower, word) {
				return Classification{
					TaskType:         group.taskType,
					RecommendedModel: group.model,
					Confidence:       0.8,
				}
			}
		}
	}
	return Classification{TaskType: "feature", RecommendedModel: "pro", Confidence: 0.3}
}

// decisionKeywords trigger a decision-level approval gate before any
// subtask is dispatched.
var decisionKeywords = []string{
	"deploy", "production", "delete", "drop", "migrate", "rollback", "release",
}

// needsDecisionApproval reports whether the task description contains a
// keyword that requires human sign-off before coding begins.
func needsDecisionApproval(task string) (string, bool) {
	lower := strings.ToLower(task)
	for _, word := range decisionKeywords {
		if strings.Contains(lower, word) {
			return word, true
		}
	}
	return "", false
}

// fallbackPlan is the heuristic planner used when the structured LLM plan
// is unavailable. It splits on sentence-ish boundaries and conjunctions;
// anything unsplittable becomes a single subtask.
func fallbackPlan(task string) *Plan {
	var parts []string
	for _, chunk := range strings.FieldsFunc(task, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	}) {
		for _, sub := range strings.Split(chunk, " and then ") {
			sub = strings.TrimSpace(sub)
			if sub != "" {
				parts = append(parts, sub)
			}
		}
	}
	if len(parts) == 0 {
		parts = []string{task}
	}

	plan := &Plan{Goal: task}
	for i, part := range parts {
		plan.Subtasks = append(plan.Subtasks, Subtask{
			ID:          fmt.Sprintf("subtask-%d", i+1),
			Description: part,
			Status:      SubtaskPending,
		})
	}
	return plan
}
