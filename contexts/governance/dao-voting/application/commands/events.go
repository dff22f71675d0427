package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"marketdao/contexts/governance/dao-voting/ports"
)

// Governance events are partitioned by proposal so consumers observe one
// proposal's votes and transitions in order.
func newVotingEnvelope(
	eventID string,
	eventType string,
	proposalID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "dao-voting",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     proposalID,
		Data:             payload,
	}, nil
}

func hashPayload(payload map[string]any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
