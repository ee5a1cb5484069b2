package model

// ================ Config ================
type WorkflowConfig struct {
	// MaxAttempts is the retry ceiling for failed query executions. Once a
	// turn has failed this many gradings it terminates via the give-up node.
	MaxAttempts int `envconfig:"WORKFLOW_MAX_ATTEMPTS" default:"7"`
	// NoDataPassAfter is the attempt count from which a "no data found"
	// result is accepted as a legitimate answer instead of retried.
	NoDataPassAfter int `envconfig:"WORKFLOW_NO_DATA_PASS_AFTER" default:"3"`
	// HistoryTurns caps how many (question, answer) pairs are rendered into
	// prompts. Stored history is not capped.
	HistoryTurns int `envconfig:"WORKFLOW_HISTORY_TURNS" default:"5"`
}

type AnalystModelConfig struct {
	Model       string  `envconfig:"ANALYST_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ANALYST_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"ANALYST_TEMPERATURE" default:"0.0"`
}

type ResponderModelConfig struct {
	Model       string  `envconfig:"RESPONDER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"RESPONDER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONDER_TEMPERATURE" default:"0.3"`
}

type OracleConfig struct {
	// MaxRetries bounds transparent retries on transport failures before the
	// fault surfaces into the workflow.
	MaxRetries int    `envconfig:"ORACLE_MAX_RETRIES" default:"3"`
	Timeout    string `envconfig:"ORACLE_TIMEOUT" default:"60s"`
}

type ThreadConfig struct {
	TTL string `envconfig:"THREAD_TTL" default:"15m"`
}
