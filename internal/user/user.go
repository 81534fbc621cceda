package user

import (
	"context"
	"time"
)

type User struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	ProfilePicture *string        `json:"profilePicture"`
	IsActive       bool           `json:"isActive"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
	Privacy        map[string]any `json:"privacy"`
}

// Available reports whether the user may own or surface location data.
func (u *User) Available() bool {
	return u != nil && u.IsActive && u.DeletedAt == nil
}

// Directory resolves user identity. FindByID returns apperrors.ErrUserNotFound
// wrapped in a NotFound error for unknown ids; FindByIDs omits them.
type Directory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*User, error)
	// UpdatePrivacy shallow-merges patch into the stored privacy bag and returns the result.
	UpdatePrivacy(ctx context.Context, id string, patch map[string]any) (map[string]any, error)
}

func mergePrivacy(current, patch map[string]any) map[string]any {
	out := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func clonePrivacy(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return mergePrivacy(p, nil)
}
