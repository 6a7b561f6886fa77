package api

import (
	"context"
	"errors"
	"net/http"

	"shop-service/internal/models"
	"shop-service/internal/service"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

var errUnauthenticated = errors.New("authentication credentials were not provided")

// Authenticator resolves the user making a request. It returns a nil user
// and nil error when the request carries no credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*models.User, error)
}

// BasicAuthenticator checks HTTP Basic credentials against the user store
type BasicAuthenticator struct {
	users *service.UserService
}

func NewBasicAuthenticator(users *service.UserService) *BasicAuthenticator {
	return &BasicAuthenticator{users: users}
}

func (a *BasicAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*models.User, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}
	return a.users.Authenticate(ctx, username, password)
}

// Action is the kind of operation a request performs on a resource
type Action int

const (
	ActionList Action = iota
	ActionRetrieve
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) ReadOnly() bool {
	return a == ActionList || a == ActionRetrieve
}

// Permission decides whether user may perform action; user is nil for
// anonymous requests.
type Permission func(user *models.User, action Action) error

// AdminOrReadOnly lets anyone read and only staff write
func AdminOrReadOnly(user *models.User, action Action) error {
	if action.ReadOnly() {
		return nil
	}
	if user == nil {
		return errUnauthenticated
	}
	if !user.IsStaff {
		return service.ErrForbidden
	}
	return nil
}

// Authenticated requires a user for everything
func Authenticated(user *models.User, action Action) error {
	if user == nil {
		return errUnauthenticated
	}
	return nil
}

// OrderPermission lets customers list, read and place orders; changing or
// deleting an order is staff-only.
func OrderPermission(user *models.User, action Action) error {
	if err := Authenticated(user, action); err != nil {
		return err
	}
	if (action == ActionUpdate || action == ActionDelete) && !user.IsStaff {
		return service.ErrForbidden
	}
	return nil
}

// authenticate resolves credentials once per request. Bad credentials are
// rejected even on public endpoints.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.auth.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		if user != nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// allow wraps a handler with a permission check for one action
func allow(perm Permission, action Action, next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := perm(currentUser(c), action); err != nil {
			respondError(c, err)
			return
		}
		next(c)
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
