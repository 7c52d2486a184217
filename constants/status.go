package constants

// ResultStatus is the canonical status stored for every processed document.
type ResultStatus string

// Stable values (store these exact strings in the outcome store).
const (
	ResultStatusProcessed ResultStatus = "PROCESSED"       // full pipeline ran
	ResultStatusSkipped   ResultStatus = "SKIPPED_QUALITY" // gate short-circuited the primary provider
	ResultStatusFailed    ResultStatus = "FAILED"          // per-document failure, run continued
)
