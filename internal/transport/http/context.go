package http

import (
	"context"
	"net/http"
)

func contextWithUser(r *http.Request, id string) context.Context {
	return context.WithValue(r.Context(), userIDKey, id)
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
