package services

import "context"

type actorKey struct{}

// ContextWithActor сохраняет в контексте ID пользователя, выполняющего действие
func ContextWithActor(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFromContext возвращает ID пользователя из контекста или nil
func ActorFromContext(ctx context.Context) *uint {
	if userID, ok := ctx.Value(actorKey{}).(uint); ok && userID != 0 {
		return &userID
	}
	return nil
}
