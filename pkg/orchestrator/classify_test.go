package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTask(t *testing.T) {
	tests := []struct {
		name      string
		task      string
		wantType  string
		wantModel string
		wantConf  float64
	}{
		{"bugfix", "Fix the crash in the login handler", "bugfix", "pro", 0.8},
		{"testing", "Improve coverage of the parser", "testing", "shadow", 0.8},
		{"refactor", "Refactor the storage layer", "refactor", "pro", 0.8},
		{"documentation", "Update the README", "documentation", "shadow", 0.8},
		{"security", "Patch the auth vulnerability", "security", "pro", 0.8},
		{"feature", "Add pagination support", "feature", "pro", 0.8},
		{"bugfix outranks feature", "fix and add stuff", "bugfix", "pro", 0.8},
		{"unmatched", "nebulous request", "feature", "pro", 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := classifyTask(tt.task)
			assert.Equal(t, tt.wantType, c.TaskType)
			assert.Equal(t, tt.wantModel, c.RecommendedModel)
			assert.Equal(t, tt.wantConf, c.Confidence)
		})
	}
}

func TestNeedsDecisionApproval(t *testing.T) {
	tests := []struct {
		task    string
		keyword string
		gated   bool
	}{
		{"deploy the new build", "deploy", true},
		{"push to Production now", "production", true},
		{"drop the legacy column", "drop", true},
		{"migrate user records", "migrate", true},
		{"add a logging helper", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			keyword, gated := needsDecisionApproval(tt.task)
			assert.Equal(t, tt.gated, gated)
			assert.Equal(t, tt.keyword, keyword)
		})
	}
}

func TestFallbackPlan(t *testing.T) {
	tests := []struct {
		name      string
		task      string
		wantParts []string
	}{
		{
			"sentence split",
			"Add the endpoint. Write tests; update docs",
			[]string{"Add the endpoint", "Write tests", "update docs"},
		},
		{
			"conjunction split",
			"build the parser and then wire it up",
			[]string{"build the parser", "wire it up"},
		},
		{
			"unsplittable",
			"do one thing",
			[]string{"do one thing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := fallbackPlan(tt.task)
			assert.Equal(t, tt.task, plan.Goal)
			require.Len(t, plan.Subtasks, len(tt.wantParts))
			for i, part := range tt.wantParts {
				assert.Equal(t, part, plan.Subtasks[i].Description)
				assert.Equal(t, SubtaskPending, plan.Subtasks[i].Status)
				assert.NotEmpty(t, plan.Subtasks[i].ID)
			}
		})
	}
}
