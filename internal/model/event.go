package model

// Pipeline stage names. Each pipeline emits events from its own closed set.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageStore    = "store"
	StageFinalize = "finalize"

	StageQueryEmbed = "query_embed"
	StageSearch     = "search"
	StageAssemble   = "assemble"
	StageGenerate   = "generate"
	StageRespond    = "respond"
)

const (
	EventStarted   = "started"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
)

// PipelineEvent is an append-only observability record. Never mutated or
// deleted once recorded.
type PipelineEvent struct {
	SubjectID  string                 `json:"subject_id"`
	Stage      string                 `json:"stage"`
	Status     string                 `json:"status"`
	Timestamp  int64                  `json:"timestamp"`
	DurationMs int64                  `json:"duration_ms"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
