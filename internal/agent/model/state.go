package model

// Grade classifies whether the current query result answers the question.
type Grade string

const (
	GradePending Grade = "pending"
	GradePass    Grade = "pass"
	GradeFail    Grade = "fail"
)

// WorkflowState stores per-turn state for the workflow graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside state handlers
//     (WithStatePreHandler, WithStatePostHandler) or compose.ProcessState,
//     which the graph runtime serializes. No extra locking is required as
//     long as the state is never touched outside handlers.
type WorkflowState struct {
	ThreadID    string
	RawQuestion string

	// StandaloneQuestion is the question rewritten to be self-contained.
	// Derived once per turn from RawQuestion plus history, never re-derived.
	StandaloneQuestion string

	IsRelevant    bool
	CurrentQuery  string
	CurrentResult string
	Grade         Grade

	// Attempts counts failed gradings. It never exceeds
	// WorkflowConfig.MaxAttempts at a terminal node.
	Attempts int

	// FinalAnswer is set exactly once, by a terminal node.
	FinalAnswer string

	// OracleFault records a surfaced model transport failure; the next branch
	// routes to the give-up node instead of misreading it as a verdict.
	OracleFault bool
}

// TurnInput is the input for processing one user turn.
type TurnInput struct {
	ThreadID string `json:"thread_id"`
	Question string `json:"question"`
}
