package service

import "context"

type actorKey struct{}

// WithActor 在上下文中记录当前坐席ID
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext 获取当前坐席ID，不存在时返回false
func ActorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}
