package memory

import "context"

type contextKey string

const sectionKey contextKey = "storageUnitSectionID"

func withSectionID(ctx context.Context, sectionID string) context.Context {
	return context.WithValue(ctx, sectionKey, sectionID)
}

func sectionIDFromContext(ctx context.Context) (string, bool) {
	sectionID, ok := ctx.Value(sectionKey).(string)

	return sectionID, ok
}
