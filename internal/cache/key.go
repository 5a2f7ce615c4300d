package cache

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"opsledger/backend/internal/domain"
)

// SummaryKey addresses a summary by the content of the snapshot it was
// computed from, so instances sharing Redis agree on it.
func SummaryKey(ledgerID string, snapshot domain.Snapshot) (string, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return fmt.Sprintf("summary:%s:%016x", ledgerID, xxhash.Sum64(payload)), nil
}
