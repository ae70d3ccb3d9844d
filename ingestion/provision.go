package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"exam-portal/apperrors"
	"exam-portal/logger"
	"exam-portal/models"
	"exam-portal/utils"
)

// ProvisionFile is the YAML document read by the provision command.
//
//	roles: [Teacher, Student]
//	accounts:
//	  - username: msmith
//	    email: msmith@school.example
//	    first_name: Maria
//	    last_name: Smith
//	    password: change-me-now
//	    role: Teacher
type ProvisionFile struct {
	Roles    []string         `yaml:"roles"`
	Accounts []AccountSection `yaml:"accounts"`
}

// AccountSection is one initial account.
type AccountSection struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
}

// DefaultProvision creates the two built-in roles and no accounts.
func DefaultProvision() *ProvisionFile {
	return &ProvisionFile{Roles: []string{models.RoleTeacher, models.RoleStudent}}
}

// LoadProvisionFile reads and validates a provisioning file. Unknown keys are errors.
func LoadProvisionFile(path string) (*ProvisionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseProvisionFile(data)
}

// ParseProvisionFile decodes and validates a provisioning document.
func ParseProvisionFile(data []byte) (*ProvisionFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f ProvisionFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks roles are named and every account is complete and uses a listed role.
func (f *ProvisionFile) Validate() error {
	if len(f.Roles) == 0 {
		return apperrors.Validation("provisioning file lists no roles")
	}
	roles := make(map[string]bool, len(f.Roles))
	for _, r := range f.Roles {
		if strings.TrimSpace(r) == "" {
			return apperrors.Validation("role names must not be blank")
		}
		roles[r] = true
	}
	usernames := make(map[string]bool, len(f.Accounts))
	for i, a := range f.Accounts {
		where := fmt.Sprintf("accounts[%d]", i)
		switch {
		case strings.TrimSpace(a.Username) == "":
			return apperrors.Validation(where + ": username is required")
		case !strings.Contains(a.Email, "@"):
			return apperrors.Validation(where + ": a valid email is required")
		case len(a.Password) < 8:
			return apperrors.Validation(where + ": password must be at least 8 characters")
		case !roles[a.Role]:
			return apperrors.Validation(fmt.Sprintf("%s: role %q is not listed under roles", where, a.Role))
		case usernames[a.Username]:
			return apperrors.Validation(fmt.Sprintf("%s: username %q appears twice", where, a.Username))
		}
		usernames[a.Username] = true
	}
	return nil
}

// Provisioner is the store the provision step writes to.
type Provisioner interface {
	EnsureRoles(ctx context.Context, names ...string) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Provision creates the roles and any accounts that do not exist yet. It returns the
// number of accounts created; existing usernames are left untouched.
func Provision(ctx context.Context, store Provisioner, f *ProvisionFile) (int, error) {
	if err := store.EnsureRoles(ctx, f.Roles...); err != nil {
		return 0, fmt.Errorf("failed to create roles: %w", err)
	}
	logger.Info().Strs("roles", f.Roles).Msg("Roles provisioned")

	created := 0
	for _, a := range f.Accounts {
		_, err := store.GetUserByUsername(ctx, a.Username)
		if err == nil {
			logger.Info().Str("username", a.Username).Msg("Account exists, skipping")
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return created, fmt.Errorf("failed to look up %s: %w", a.Username, err)
		}
		hash, err := utils.HashPassword(a.Password)
		if err != nil {
			return created, err
		}
		u := &models.User{
			Username:     a.Username,
			Email:        a.Email,
			FirstName:    a.FirstName,
			LastName:     a.LastName,
			PasswordHash: hash,
			Role:         a.Role,
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return created, fmt.Errorf("failed to create account %s: %w", a.Username, err)
		}
		logger.Info().Str("username", u.Username).Str("role", u.Role).Msg("Account provisioned")
		created++
	}
	return created, nil
}
