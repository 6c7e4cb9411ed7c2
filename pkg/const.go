package pkg

const (
	BatchId       string = "batch_id"
	ExternalId    string = "external_id"
	AccountNumber string = "account_number"
	RecordIndex   string = "record_index"
)

// BatchPolicy controls what happens to the rest of a batch when a single
// record fails normalization or foreign-key resolution.
type BatchPolicy string

const (
	PolicyAbortAll      BatchPolicy = "abort-all"
	PolicySkipAndReport BatchPolicy = "skip-and-report"
)
