package reqctx

import "context"

type ctxKey string

const (
	keyRID ctxKey = "referral_rid"
	keyUID ctxKey = "referral_uid"
)

// WithRID stores the request id used to correlate service logs.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns the request id, or "-" when none was set.
func RID(ctx context.Context) string {
	if v, ok := ctx.Value(keyRID).(string); ok && v != "" {
		return v
	}
	return "-"
}

// WithUID stores the authenticated operator's Firebase uid.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyUID, uid)
}

// UID returns the operator uid if present.
func UID(ctx context.Context) string {
	v, _ := ctx.Value(keyUID).(string)
	return v
}
