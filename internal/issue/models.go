package issue

import (
	"strings"
	"time"
	"unicode/utf8"
)

// WorkflowState represents the position of an issue inside the processing
// pipeline. States come in pending/in-progress pairs per stage plus the two
// terminals.
type WorkflowState string

const (
	StatePendingArchive     WorkflowState = "pending_archive"
	StateArchiving          WorkflowState = "archiving"
	StatePendingFetchFeeds  WorkflowState = "pending_fetch_feeds"
	StateFetchingFeeds      WorkflowState = "fetching_feeds"
	StatePendingExtract     WorkflowState = "pending_extract"
	StateExtractingArticles WorkflowState = "extracting_articles"
	StatePendingScore       WorkflowState = "pending_score"
	StateScoring            WorkflowState = "scoring"
	StatePendingGenerate    WorkflowState = "pending_generate"
	StateGeneratingArticles WorkflowState = "generating_articles"
	StatePendingFinalize    WorkflowState = "pending_finalize"
	StateFinalizing         WorkflowState = "finalizing"
	StateComplete           WorkflowState = "complete"
	StateFailed             WorkflowState = "failed"
)

// Status values mirror workflow progress for dashboard consumption.
const (
	StatusDraft      = "draft"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// ErrorMessageLimit bounds the persisted workflow error message.
const ErrorMessageLimit = 500

// Newsletter sections posts are sorted into by the scoring stage.
const (
	SectionNews     = "news"
	SectionResearch = "research"
)

// Sections returns the ordered newsletter sections.
func Sections() []string {
	return []string{SectionNews, SectionResearch}
}

// transitions maps every state to its unique successor. The terminals loop to
// themselves so repeated application is a no-op at the boundary.
var transitions = map[WorkflowState]WorkflowState{
	StatePendingArchive:     StateArchiving,
	StateArchiving:          StatePendingFetchFeeds,
	StatePendingFetchFeeds:  StateFetchingFeeds,
	StateFetchingFeeds:      StatePendingExtract,
	StatePendingExtract:     StateExtractingArticles,
	StateExtractingArticles: StatePendingScore,
	StatePendingScore:       StateScoring,
	StateScoring:            StatePendingGenerate,
	StatePendingGenerate:    StateGeneratingArticles,
	StateGeneratingArticles: StatePendingFinalize,
	StatePendingFinalize:    StateFinalizing,
	StateFinalizing:         StateComplete,
	StateComplete:           StateComplete,
	StateFailed:             StateFailed,
}

var allStates = []WorkflowState{
	StatePendingArchive,
	StateArchiving,
	StatePendingFetchFeeds,
	StateFetchingFeeds,
	StatePendingExtract,
	StateExtractingArticles,
	StatePendingScore,
	StateScoring,
	StatePendingGenerate,
	StateGeneratingArticles,
	StatePendingFinalize,
	StateFinalizing,
	StateComplete,
	StateFailed,
}

var pendingStates = []WorkflowState{
	StatePendingArchive,
	StatePendingFetchFeeds,
	StatePendingExtract,
	StatePendingScore,
	StatePendingGenerate,
	StatePendingFinalize,
}

var inProgressStates = []WorkflowState{
	StateArchiving,
	StateFetchingFeeds,
	StateExtractingArticles,
	StateScoring,
	StateGeneratingArticles,
	StateFinalizing,
}

var stateSet = func() map[WorkflowState]struct{} {
	set := make(map[WorkflowState]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Next returns the unique successor of a state per the transition table.
func Next(state WorkflowState) (WorkflowState, bool) {
	next, ok := transitions[state]
	return next, ok
}

// AllStates returns the ordered list of known workflow states.
func AllStates() []WorkflowState {
	cp := make([]WorkflowState, len(allStates))
	copy(cp, allStates)
	return cp
}

// PendingStates returns the ordered list of "ready to start stage X" states.
func PendingStates() []WorkflowState {
	cp := make([]WorkflowState, len(pendingStates))
	copy(cp, pendingStates)
	return cp
}

// InProgressStates returns the ordered list of active stage states.
func InProgressStates() []WorkflowState {
	cp := make([]WorkflowState, len(inProgressStates))
	copy(cp, inProgressStates)
	return cp
}

// ParseWorkflowState converts a string into a known WorkflowState.
func ParseWorkflowState(value string) (WorkflowState, bool) {
	normalized := WorkflowState(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state admits no further transitions.
func (s WorkflowState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// IsPending reports whether the state marks a stage ready to start.
func (s WorkflowState) IsPending() bool {
	return strings.HasPrefix(string(s), "pending_")
}

// IsInProgress reports whether the state marks an actively executing stage.
func (s WorkflowState) IsInProgress() bool {
	if s == "" {
		return false
	}
	_, known := stateSet[s]
	return known && !s.IsPending() && !s.IsTerminal()
}

// Label returns a human-readable form of the state for CLI and alert output.
func (s WorkflowState) Label() string {
	parts := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

// Issue is one newsletter edition flowing through the pipeline.
type Issue struct {
	ID                     string
	Title                  string
	EditionDate            string
	Status                 string
	WorkflowState          WorkflowState
	WorkflowStateStartedAt time.Time
	WorkflowError          string
	FailureAlertedAt       *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Feed is a configured RSS source.
type Feed struct {
	ID         int64
	Name       string
	URL        string
	Active     bool
	ErrorCount int
	CreatedAt  time.Time
}

// Post is one ingested feed entry attached to an issue.
type Post struct {
	ID          int64
	IssueID     string
	FeedID      int64
	Title       string
	Link        string
	Summary     string
	FullText    string
	PublishedAt *time.Time
	Score       *float64
	Section     string
	CreatedAt   time.Time
}

// Article is generated newsletter copy derived from a post.
type Article struct {
	ID        int64
	IssueID   string
	PostID    int64
	Section   string
	Headline  string
	Body      string
	FactCheck string
	Position  int
	CreatedAt time.Time
}

// HealthSummary describes aggregated issue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	InProgress int
	Complete   int
	Failed     int
}

// TruncateError bounds an error message to ErrorMessageLimit bytes without
// splitting a multi-byte rune at the cut.
func TruncateError(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= ErrorMessageLimit {
		return message
	}
	cut := ErrorMessageLimit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
