package postgresadapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marketdao/contexts/governance/dao-voting/ports"
)

// UUIDGenerator implements ports.IDGenerator using RFC 4122 UUID v4 values.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// SystemClock reports wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.IDGenerator = UUIDGenerator{}
var _ ports.Clock = SystemClock{}
