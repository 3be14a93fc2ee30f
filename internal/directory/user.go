// Package directory exposes the user directory resource over the gateway.
package directory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"sockrest/internal/errors"
	"sockrest/internal/protocol"
	"sockrest/internal/resource"
	"sockrest/internal/store"
)

// User is the persisted directory entry. Storage belongs to GORM.
type User struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:150;uniqueIndex" json:"username"`
	Email    string `gorm:"size:254" json:"email"`
}

// Serializer validates user payloads and shapes wire representations.
// Username is required; email is optional but must be well-formed.
type Serializer struct{}

type userInput struct {
	Username *string `json:"username" validate:"omitempty,min=1,max=150"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

// Apply implements resource.Serializer.
func (Serializer) Apply(data []byte, dst *User, partial bool) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var in userInput
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Invalid("data", "Invalid JSON payload.")
	}

	var errs errors.ValidationErrors
	if !partial && in.Username == nil {
		errs = append(errs, errors.ValidationError{Field: "username", Message: "This field is required."})
	}
	if err := resource.ValidateStruct(&in); err != nil {
		var verrs errors.ValidationErrors
		if !errors.AsValidation(err, &verrs) {
			return err
		}
		errs = append(errs, verrs...)
	}
	if len(errs) > 0 {
		return errs
	}

	if in.Username != nil {
		dst.Username = *in.Username
	}
	if in.Email != nil {
		dst.Email = *in.Email
	}
	return nil
}

// Serialize implements resource.Serializer.
func (Serializer) Serialize(u *User) any {
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	}
}

// PrimaryKey implements resource.Serializer.
func (Serializer) PrimaryKey(u *User) uint64 {
	return u.ID
}

// NewResource builds the users resource, including the custom "exists"
// action clients use for cheap presence checks.
func NewResource(db *gorm.DB, opts ...resource.Option[User]) *resource.Resource[User] {
	repo := store.NewRepository[User](db)
	res := resource.New[User]("users", repo, Serializer{}, opts...)
	res.Register("exists", existsHandler(repo))
	return res
}

func existsHandler(repo *store.Repository[User]) resource.Handler {
	return func(ctx context.Context, req *protocol.Request) (any, int, error) {
		if req.PK == nil {
			return nil, 0, fmt.Errorf("missing pk: %w", errors.ErrNotFound)
		}
		ok, err := repo.Exists(ctx, uint64(*req.PK))
		if err != nil {
			return nil, 0, err
		}
		return map[string]any{"pk": *req.PK, "exists": ok}, http.StatusOK, nil
	}
}
