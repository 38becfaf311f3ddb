package requestdata

import (
	"context"

	"github.com/thomasmilici/domux-backend/internal/types"
)

type ctxKey struct{}

var requestDataKey = ctxKey{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData is the verified identity attached to every authenticated
// request.
type RequestData struct {
	UserID      string
	Email       string
	DisplayName string
}

func (rd *RequestData) User() types.User {
	if rd == nil {
		return types.User{}
	}
	return types.User{
		UID:         rd.UserID,
		Email:       rd.Email,
		DisplayName: rd.DisplayName,
	}
}
