package pipeline

import (
	"fmt"

	"pressroom/internal/issue"
)

// Step binds a stage name to its pending/in-progress state pair and its
// position in the pipeline.
type Step struct {
	Name       string
	Ordinal    int
	Pending    issue.WorkflowState
	InProgress issue.WorkflowState
}

// totalPositions counts the six stages plus the terminal complete state, as
// reported in the step field of the wire contract.
const totalPositions = 7

const (
	StepArchive          = "archive"
	StepFetchFeeds       = "fetch_feeds"
	StepExtractArticles  = "extract_articles"
	StepScore            = "score"
	StepGenerateArticles = "generate_articles"
	StepFinalize         = "finalize"
)

var steps = []Step{
	{Name: StepArchive, Ordinal: 1, Pending: issue.StatePendingArchive, InProgress: issue.StateArchiving},
	{Name: StepFetchFeeds, Ordinal: 2, Pending: issue.StatePendingFetchFeeds, InProgress: issue.StateFetchingFeeds},
	{Name: StepExtractArticles, Ordinal: 3, Pending: issue.StatePendingExtract, InProgress: issue.StateExtractingArticles},
	{Name: StepScore, Ordinal: 4, Pending: issue.StatePendingScore, InProgress: issue.StateScoring},
	{Name: StepGenerateArticles, Ordinal: 5, Pending: issue.StatePendingGenerate, InProgress: issue.StateGeneratingArticles},
	{Name: StepFinalize, Ordinal: 6, Pending: issue.StatePendingFinalize, InProgress: issue.StateFinalizing},
}

// Steps returns the ordered pipeline steps.
func Steps() []Step {
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return cp
}

// StepByName resolves a step from its endpoint name.
func StepByName(name string) (Step, bool) {
	for _, step := range steps {
		if step.Name == name {
			return step, true
		}
	}
	return Step{}, false
}

// StepForPending resolves the step that starts from the given pending state.
func StepForPending(state issue.WorkflowState) (Step, bool) {
	for _, step := range steps {
		if step.Pending == state {
			return step, true
		}
	}
	return Step{}, false
}

// Position renders the step's place in the pipeline for the wire contract.
func (s Step) Position() string {
	return fmt.Sprintf("%d/%d", s.Ordinal, totalPositions)
}
