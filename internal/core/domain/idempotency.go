package domain

import (
	"time"
)

// IdempotencyLog is the stored outcome of a mutation, replayed when the same key is seen again.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "owner:operation:client_key"
	HTTPStatus   int       `json:"http_status"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildIdempotencyKey scopes a client-provided key to an owner and operation.
func BuildIdempotencyKey(owner Address, operation AuditAction, clientKey string) string {
	return owner.String() + ":" + string(operation) + ":" + clientKey
}
