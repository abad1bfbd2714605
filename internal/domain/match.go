package domain

// BatchRequest selects the window of videos a batch run works on
type BatchRequest struct {
	Offset    int     `json:"offset"`
	BatchSize int     `json:"batchSize"`
	Threshold float64 `json:"threshold"`
	UseAI     bool    `json:"useAI"`
}

// BatchSummary is returned by every batch run.
// Callers re-invoke with NextOffset until Complete is true.
type BatchSummary struct {
	Offset        int     `json:"offset"`
	BatchSize     int     `json:"batchSize"`
	Threshold     float64 `json:"threshold"`
	Processed     int     `json:"processed"`
	Matched       int     `json:"matched"`
	MatchedDirect int     `json:"matchedDirect"`
	MatchedFuzzy  int     `json:"matchedFuzzy"`
	MatchedAI     int     `json:"matchedAI"`
	Unmatched     int     `json:"unmatched"`
	Failed        int     `json:"failed"`
	Remaining     int64   `json:"remaining"`
	Complete      bool    `json:"complete"`
	NextOffset    int     `json:"nextOffset"`
}

// Add accumulates the counters of another batch into s
func (s *BatchSummary) Add(other *BatchSummary) {
	s.Processed += other.Processed
	s.Matched += other.Matched
	s.MatchedDirect += other.MatchedDirect
	s.MatchedFuzzy += other.MatchedFuzzy
	s.MatchedAI += other.MatchedAI
	s.Unmatched += other.Unmatched
	s.Failed += other.Failed
}

// RebuildRequest configures a full clear-and-rematch run
type RebuildRequest struct {
	BatchSize int     `json:"batchSize"`
	Threshold float64 `json:"threshold"`
	UseAI     bool    `json:"useAI"`
}

// RebuildSummary reports a completed rebuild
type RebuildSummary struct {
	Cleared         int64        `json:"cleared"`
	ProductsUpdated int64        `json:"productsUpdated"`
	Batches         int          `json:"batches"`
	Totals          BatchSummary `json:"totals"`
}
