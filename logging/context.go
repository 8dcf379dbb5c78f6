package logging

import "context"

type fieldsCtxKey struct{}

// ContextWithFields returns a context whose C* log calls carry the given key/value pairs.
// Fields already present on ctx are kept.
func ContextWithFields(ctx context.Context, keysAndValues ...interface{}) context.Context {
	existing := FieldsFromContext(ctx)
	merged := make([]interface{}, 0, len(existing)+len(keysAndValues))
	merged = append(merged, existing...)
	merged = append(merged, keysAndValues...)
	return context.WithValue(ctx, fieldsCtxKey{}, merged)
}

// FieldsFromContext returns the key/value pairs attached by ContextWithFields.
func FieldsFromContext(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsCtxKey{}).([]interface{})
	return fields
}
