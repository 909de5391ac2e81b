package domain

import "context"

// PriceSource fetches current market prices.
// Implementations may return a stale quote (Quote.Stale) when upstream is unavailable.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string, assetType AssetType) (Quote, error)
}

// AuditSink records operator activity. Record is fire-and-forget: it never reports failure
// to the caller, so an audit outage cannot roll back a settlement.
type AuditSink interface {
	Record(ctx context.Context, actorID, actionType, targetType, targetID, description string, metadata map[string]interface{})
}

// NoopAuditSink discards every record
type NoopAuditSink struct{}

// Record implements AuditSink
func (NoopAuditSink) Record(context.Context, string, string, string, string, string, map[string]interface{}) {
}
