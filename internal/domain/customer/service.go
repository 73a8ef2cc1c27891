package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate on unknown email or
// wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// TokenIssuer signs access tokens for authenticated customers.
type TokenIssuer interface {
	Issue(subject string, role int) (string, error)
}

// Registration holds the input for creating an account.
type Registration struct {
	Name     string
	Email    string
	Password string
	Address  string
	Phone    string
}

// Update holds a partial account update. Password is hashed before storage.
type Update struct {
	Name     *string
	Email    *string
	Password *string
	Address  *string
	Phone    *string
}

// Service manages customer accounts.
type Service struct {
	repo       Repository
	tokens     TokenIssuer
	bcryptCost int
}

// NewService creates a customer Service. A bcryptCost of zero selects
// bcrypt.DefaultCost.
func NewService(repo Repository, tokens TokenIssuer, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

// Register creates a customer account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, r Registration) (*Customer, error) {
	email := normalizeEmail(r.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.bcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	c := &Customer{
		ID:           uuid.NewString(),
		Name:         r.Name,
		Email:        email,
		PasswordHash: string(hash),
		Address:      r.Address,
		Phone:        r.Phone,
		Role:         RoleCustomer,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, errors.Wrap(err, "insert customer")
	}
	return c, nil
}

// Authenticate verifies credentials and returns the customer with a signed
// access token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Customer, string, error) {
	c, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", errors.Wrap(err, "get customer by email")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(c.ID, int(c.Role))
	if err != nil {
		return nil, "", errors.Wrap(err, "issue token")
	}
	return c, token, nil
}

// Get returns a single customer.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update applies a partial update to the customer.
func (s *Service) Update(ctx context.Context, id string, u Update) (*Customer, error) {
	f := Fields{
		Name:    u.Name,
		Address: u.Address,
		Phone:   u.Phone,
	}
	if u.Email != nil {
		email := normalizeEmail(*u.Email)
		existing, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != id:
			return nil, ErrEmailTaken
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "check email")
		}
		f.Email = &email
	}
	if u.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*u.Password), s.bcryptCost)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		h := string(hash)
		f.PasswordHash = &h
	}
	if f.Empty() {
		return s.repo.Get(ctx, id)
	}
	return s.repo.UpdateFields(ctx, id, f)
}

// Delete removes the customer account.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
