package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
	"marketdao/contexts/commerce/order-settlement/ports"
)

// Settlement events are keyed by order so one order's history stays ordered.
func (s Service) appendOrderEvent(ctx context.Context, tx ports.Tx, eventType string, order entities.Order, now time.Time, data map[string]any) error {
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data["order_id"] = order.OrderID
	data["status"] = string(order.Status)
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          strings.TrimSpace(eventID),
		EventType:        eventType,
		OccurredAt:       now.UTC(),
		SourceService:    "order-settlement",
		TraceID:          strings.TrimSpace(eventID),
		SchemaVersion:    1,
		PartitionKeyPath: "order_id",
		PartitionKey:     order.OrderID,
		Data:             payload,
	})
}

func hashPayload(payload map[string]any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// hashTransfers fingerprints a set of posted legs.
func hashTransfers(orderID string, transfers []entities.Transfer) string {
	h := sha256.New()
	h.Write([]byte(orderID))
	for _, transfer := range transfers {
		h.Write([]byte{0})
		h.Write([]byte(transfer.Leg + "|" + transfer.To + "|" + transfer.Amount.String() + "|" + transfer.TransferID + "|" + transfer.Hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}
