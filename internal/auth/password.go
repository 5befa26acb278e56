package auth

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/apprentice-tracker/internal/model"
)

// bcryptMaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const bcryptMaxPasswordBytes = 72

// ErrPasswordMismatch はパスワードがハッシュと一致しない場合のエラー。
var ErrPasswordMismatch = errors.New("password does not match")

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare は一致しない場合にErrPasswordMismatchを返す。
	Compare(hash, password string) error
}

// BcryptHasher はbcryptによるPasswordHasher実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。costが範囲外の場合はDefaultCostを使う。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードのbcryptハッシュを返す。
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Compare はハッシュとパスワードを照合する。
func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("failed to compare password: %w", err)
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// CredentialPolicy はユーザー名とパスワードの形式ルール。
type CredentialPolicy struct {
	minPasswordLength int
	usernamePattern   *regexp.Regexp
}

// NewCredentialPolicy はCredentialPolicyを生成する。
func NewCredentialPolicy(minPasswordLength int, usernamePattern string) (*CredentialPolicy, error) {
	re, err := regexp.Compile(usernamePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid username pattern: %w", err)
	}
	return &CredentialPolicy{
		minPasswordLength: minPasswordLength,
		usernamePattern:   re,
	}, nil
}

// ValidateUsername はユーザー名を検証する。
func (p *CredentialPolicy) ValidateUsername(username string) error {
	if username == "" {
		return model.NewValidationError("username", "must not be empty")
	}
	if !p.usernamePattern.MatchString(username) {
		return model.NewValidationError("username", "contains invalid characters or has invalid length")
	}
	return nil
}

// ValidatePassword はパスワードを検証する。
func (p *CredentialPolicy) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < p.minPasswordLength {
		return model.NewValidationError("password", fmt.Sprintf("must be at least %d characters", p.minPasswordLength))
	}
	if len(password) > bcryptMaxPasswordBytes {
		return model.NewValidationError("password", fmt.Sprintf("must be at most %d bytes", bcryptMaxPasswordBytes))
	}
	return nil
}

// Validate はユーザー名とパスワードの両方を検証する。
func (p *CredentialPolicy) Validate(username, password string) error {
	if err := p.ValidateUsername(username); err != nil {
		return err
	}
	return p.ValidatePassword(password)
}
