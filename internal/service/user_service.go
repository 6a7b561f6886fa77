package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const dateLayout = "2006-01-02"

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// UserService handles registration, authentication and profiles
type UserService struct {
	repo     store.Repository
	validate *validator.Validate
	hashCost int
	logger   *zap.Logger
}

func NewUserService(repo store.Repository) *UserService {
	return &UserService{
		repo:     repo,
		validate: validator.New(),
		hashCost: bcrypt.DefaultCost,
		logger:   util.GetLogger(),
	}
}

// RegisterInput is the registration payload
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Profile is the self-service view of a user
type Profile struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     string  `json:"phone"`
	BirthDate *string `json:"birth_date"`
	Address   string  `json:"address"`
}

// ProfileInput holds the writable profile fields. Nil fields are left
// unchanged; an empty BirthDate clears it.
type ProfileInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	BirthDate *string `json:"birth_date"`
}

func NewProfile(u *models.User) *Profile {
	p := &Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Address:   u.Address,
	}
	if u.BirthDate != nil {
		d := u.BirthDate.Format(dateLayout)
		p.BirthDate = &d
	}
	return p
}

// Register validates the payload and creates a user with a bcrypt password hash
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := &ValidationError{}
	switch {
	case in.Username == "":
		verr.Add("username", msgRequired)
	case len(in.Username) > 150:
		verr.Add("username", "Ensure this field has no more than 150 characters.")
	case !usernamePattern.MatchString(in.Username):
		verr.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	switch {
	case in.Email == "":
		verr.Add("email", msgRequired)
	case s.validate.Var(in.Email, "email") != nil:
		verr.Add("email", "Enter a valid email address.")
	}
	if in.Password == "" {
		verr.Add("password", msgRequired)
	}
	if in.ConfirmPassword == "" {
		verr.Add("confirm_password", msgRequired)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if in.Password != in.ConfirmPassword {
		return nil, NewValidationError(nonFieldErrors, "Passwords do not match")
	}
	for _, problem := range checkPasswordStrength(in.Password, in.Username, in.Email, in.FirstName, in.LastName) {
		verr.Add("password", problem)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if strings.Contains(err.Error(), "email") {
				return nil, NewValidationError("email", "A user with that email already exists.")
			}
			return nil, NewValidationError("username", "A user with that username already exists.")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	util.UsersRegisteredTotal.Inc()
	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate checks a username and password
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Authenticate")
	defer span.End()

	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	ctx, span := util.StartSpan(ctx, "UserService.GetProfile")
	defer span.End()

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return NewProfile(user), nil
}

// UpdateProfile changes the caller's own profile. Username and email are
// read-only and never touched.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*Profile, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateProfile")
	defer span.End()

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	verr := &ValidationError{}
	setText := func(field string, dst *string, v *string, max int) {
		if v == nil {
			return
		}
		if len(*v) > max {
			verr.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", max))
			return
		}
		*dst = strings.TrimSpace(*v)
	}
	setText("first_name", &user.FirstName, in.FirstName, 150)
	setText("last_name", &user.LastName, in.LastName, 150)
	setText("phone", &user.Phone, in.Phone, 32)
	setText("address", &user.Address, in.Address, 255)

	if in.BirthDate != nil {
		if strings.TrimSpace(*in.BirthDate) == "" {
			user.BirthDate = nil
		} else {
			d, err := time.Parse(dateLayout, strings.TrimSpace(*in.BirthDate))
			switch {
			case err != nil:
				verr.Add("birth_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
			case d.After(time.Now()):
				verr.Add("birth_date", "Birth date cannot be in the future.")
			default:
				user.BirthDate = &d
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUserProfile(ctx, user); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info("Profile updated", zap.Int64("user_id", userID))
	return NewProfile(user), nil
}
