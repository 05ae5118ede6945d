package fakebackend

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var errUserNotFound = errors.New("user not found")

type User struct {
	ID           string
	Email        string
	PasswordHash string
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

type userRepo struct {
	users    map[string]*User
	emailIDs map[string]string // email to user id
	lock     sync.RWMutex
}

func newUserRepo() *userRepo {
	return &userRepo{
		users:    make(map[string]*User),
		emailIDs: make(map[string]string),
	}
}

func (ur *userRepo) upsert(user *User) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = normaliseEmail(user.Email)
	ur.users[user.ID] = user
	ur.emailIDs[user.Email] = user.ID
}

func (ur *userRepo) getByEmail(email string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIDs[normaliseEmail(email)]
	if !ok {
		return nil, errUserNotFound
	}
	return ur.users[id], nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateCredentials rejects obviously unusable login input before any lookup.
func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return errors.New("invalid email format")
	}
	return nil
}
