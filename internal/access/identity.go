package access

import (
	"context"

	"makecoffee/models"
)

type contextKey struct{}

// Identity is the caller of a single request. The zero value is a guest.
type Identity struct {
	UserID      uint
	Username    string
	IsStaff     bool
	IsSuperuser bool
}

// FromUser builds the identity for an authenticated account.
func FromUser(user *models.User) Identity {
	if user == nil {
		return Identity{}
	}
	return Identity{
		UserID:      user.ID,
		Username:    user.Username,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
	}
}

// Authenticated reports whether the identity belongs to a signed-in account.
func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request identity, or a guest when none was attached.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(contextKey{}).(Identity)
	return id
}
