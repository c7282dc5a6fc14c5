// internal/services/auth_service_test.go
package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/protrace/backend/internal/apperrors"
	"github.com/protrace/backend/internal/models"
)

type AuthServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *AuthService
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.service = NewAuthService(s.db, newTestConfig())
}

func (s *AuthServiceTestSuite) register(username, email string) *AuthResponse {
	resp, err := s.service.Register(&RegisterRequest{
		Username: username,
		Email:    email,
		Password: "Sup3rSecret",
		Role:     models.RoleManufacturer,
	})
	s.Require().NoError(err)
	return resp
}

func (s *AuthServiceTestSuite) TestRegisterIssuesSession() {
	resp := s.register("alice", "alice@example.com")

	s.Equal("alice", resp.User.Username)
	s.Equal(models.RoleManufacturer, resp.User.Role)
	s.NotEmpty(resp.AccessToken)
	s.NotEmpty(resp.RefreshToken)
	s.Equal("Bearer", resp.TokenType)

	// The refresh token is persisted into the account's session slot.
	var stored models.User
	s.Require().NoError(s.db.First(&stored, "id = ?", resp.User.ID).Error)
	s.Require().NotNil(stored.RefreshToken)
	s.Equal(resp.RefreshToken, *stored.RefreshToken)
}

func (s *AuthServiceTestSuite) TestRegisterDefaultsToConsumer() {
	resp, err := s.service.Register(&RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "Sup3rSecret",
	})
	s.Require().NoError(err)
	s.Equal(models.RoleConsumer, resp.User.Role)
}

func (s *AuthServiceTestSuite) TestRegisterNormalizesIdentifiers() {
	resp, err := s.service.Register(&RegisterRequest{
		Username: "CaroL",
		Email:    "Carol@Example.COM",
		Password: "Sup3rSecret",
	})
	s.Require().NoError(err)
	s.Equal("carol", resp.User.Username)
	s.Equal("carol@example.com", resp.User.Email)
}

func (s *AuthServiceTestSuite) TestRegisterRejectsUnknownRole() {
	_, err := s.service.Register(&RegisterRequest{
		Username: "mallory",
		Email:    "mallory@example.com",
		Password: "Sup3rSecret",
		Role:     "superadmin",
	})
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *AuthServiceTestSuite) TestRegisterDuplicateEmailConflicts() {
	s.register("alice", "alice@example.com")

	_, err := s.service.Register(&RegisterRequest{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "Sup3rSecret",
	})
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *AuthServiceTestSuite) TestRegisterDuplicateUsernameConflicts() {
	s.register("alice", "alice@example.com")

	_, err := s.service.Register(&RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "Sup3rSecret",
	})
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *AuthServiceTestSuite) TestLoginSucceeds() {
	s.register("alice", "alice@example.com")

	resp, err := s.service.Login(&LoginRequest{
		Email:    "alice@example.com",
		Password: "Sup3rSecret",
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.AccessToken)
}

// Unknown account and wrong password must be indistinguishable.
func (s *AuthServiceTestSuite) TestLoginFailuresAreUniform() {
	s.register("alice", "alice@example.com")

	_, errUnknown := s.service.Login(&LoginRequest{
		Email:    "nobody@example.com",
		Password: "Sup3rSecret",
	})
	_, errWrongPassword := s.service.Login(&LoginRequest{
		Email:    "alice@example.com",
		Password: "WrongPass1",
	})

	s.ErrorIs(errUnknown, apperrors.ErrInvalidCredentials)
	s.ErrorIs(errWrongPassword, apperrors.ErrInvalidCredentials)
	s.Equal(errUnknown.Error(), errWrongPassword.Error())
}

func (s *AuthServiceTestSuite) TestRefreshRotatesToken() {
	registered := s.register("alice", "alice@example.com")

	refreshed, err := s.service.Refresh(registered.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(registered.RefreshToken, refreshed.RefreshToken)

	var stored models.User
	s.Require().NoError(s.db.First(&stored, "id = ?", registered.User.ID).Error)
	s.Require().NotNil(stored.RefreshToken)
	s.Equal(refreshed.RefreshToken, *stored.RefreshToken)
}

// A rotated-away token must lose: only the current slot value refreshes.
func (s *AuthServiceTestSuite) TestRefreshRejectsSupersededToken() {
	registered := s.register("alice", "alice@example.com")

	_, err := s.service.Refresh(registered.RefreshToken)
	s.Require().NoError(err)

	_, err = s.service.Refresh(registered.RefreshToken)
	s.ErrorIs(err, apperrors.ErrInvalidCredentials)
}

// N goroutines racing to rotate the same token: the conditional update lets
// exactly one through; the rest present a value no longer in the slot.
func (s *AuthServiceTestSuite) TestConcurrentRefreshSingleWinner() {
	registered := s.register("alice", "alice@example.com")

	const workers = 8

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Refresh(registered.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			rejected++
		default:
			s.Require().NoError(err)
		}
	}

	s.Equal(1, wins)
	s.Equal(workers-1, rejected)
}

func (s *AuthServiceTestSuite) TestRefreshRejectsGarbage() {
	_, err := s.service.Refresh("not-a-token")
	s.ErrorIs(err, apperrors.ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestLogoutRevokesSession() {
	registered := s.register("alice", "alice@example.com")

	s.Require().NoError(s.service.Logout(registered.User.ID))

	var stored models.User
	s.Require().NoError(s.db.First(&stored, "id = ?", registered.User.ID).Error)
	s.Nil(stored.RefreshToken)

	// The old token no longer occupies the slot, so it cannot refresh.
	_, err := s.service.Refresh(registered.RefreshToken)
	s.ErrorIs(err, apperrors.ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestChangePassword() {
	registered := s.register("alice", "alice@example.com")

	err := s.service.ChangePassword(registered.User.ID, &ChangePasswordRequest{
		OldPassword: "Sup3rSecret",
		NewPassword: "N3wSecret99",
	})
	s.Require().NoError(err)

	_, err = s.service.Login(&LoginRequest{Email: "alice@example.com", Password: "Sup3rSecret"})
	s.ErrorIs(err, apperrors.ErrInvalidCredentials)

	_, err = s.service.Login(&LoginRequest{Email: "alice@example.com", Password: "N3wSecret99"})
	s.NoError(err)
}

func (s *AuthServiceTestSuite) TestChangePasswordRequiresOldPassword() {
	registered := s.register("alice", "alice@example.com")

	err := s.service.ChangePassword(registered.User.ID, &ChangePasswordRequest{
		OldPassword: "WrongPass1",
		NewPassword: "N3wSecret99",
	})
	s.ErrorIs(err, apperrors.ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestUpdateAccountConflictsOnTakenUsername() {
	s.register("alice", "alice@example.com")
	registered := s.register("bob", "bob@example.com")

	_, err := s.service.UpdateAccount(registered.User.ID, &UpdateAccountRequest{
		Username: "Alice",
	})
	s.ErrorIs(err, apperrors.ErrConflict)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
