package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/easytips/easytips/internal/domain"
	"github.com/easytips/easytips/internal/notify"
	"github.com/easytips/easytips/internal/repository"
	"github.com/easytips/easytips/pkg/config"
	"github.com/easytips/easytips/pkg/events"
	"github.com/easytips/easytips/pkg/logger"
)

type AuthService interface {
	SendCode(ctx context.Context, phone string) error
	VerifyCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.LoginResult, error)
	OrganizationLogin(ctx context.Context, req *domain.OrganizationLoginRequest) (*domain.LoginResult, error)
	RegisterOrganization(ctx context.Context, req *domain.RegisterOrganizationRequest) (*domain.LoginResult, error)
	GuestLogin(ctx context.Context) (*domain.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ResolveSession(ctx context.Context, token string) (*domain.User, *domain.Session, error)
	RenewSession(ctx context.Context, token string) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error)
	CompleteProfile(ctx context.Context, user *domain.User, req *domain.UpdateProfileRequest) (*domain.User, error)
	CreateEmployee(ctx context.Context, organization *domain.User, req *domain.CreateEmployeeRequest) (*domain.User, error)
}

type authService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	verifyRepo  repository.VerifyRepository
	notifier    notify.Service
	eventBus    events.Publisher
	config      *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	verifyRepo repository.VerifyRepository,
	notifier notify.Service,
	eventBus events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		verifyRepo:  verifyRepo,
		notifier:    notifier,
		eventBus:    eventBus,
		config:      config,
	}
}

func (s *authService) SendCode(ctx context.Context, phone string) error {
	req := domain.SendCodeRequest{Phone: phone}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	// Only the hash reaches the store; the plaintext goes straight to the
	// notifier and is forgotten.
	if err := s.verifyRepo.StoreCodeHash(ctx, req.Phone, hashCode(code), s.config.Auth.CodeTTL); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.notifier.SendVerificationCode(ctx, req.Phone, code); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification code", "error", err, "phone", req.Phone)
		// Don't fail the request - the code was stored successfully
	}

	return nil
}

func (s *authService) VerifyCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.LoginResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	storedHash, err := s.verifyRepo.CodeHash(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification code: %w", err)
	}
	if storedHash == "" || storedHash != hashCode(req.Code) {
		if storedHash != "" {
			attempts, aerr := s.verifyRepo.IncrementAttempts(ctx, req.Phone, s.config.Auth.CodeTTL)
			if aerr != nil {
				logger.ErrorContext(ctx, "Failed to count verification attempt", "error", aerr)
			} else if attempts >= int64(s.config.Auth.MaxCodeAttempts) {
				// Burn the code once the guess budget is spent.
				if cerr := s.verifyRepo.Clear(ctx, req.Phone); cerr != nil {
					logger.ErrorContext(ctx, "Failed to clear verification code", "error", cerr)
				}
			}
		}
		return nil, domain.ErrInvalidCredential
	}

	if err := s.verifyRepo.Clear(ctx, req.Phone); err != nil {
		logger.WarnContext(ctx, "Failed to clear consumed verification code", "error", err)
	}

	user, created, err := s.resolveOrCreate(ctx, req.Phone, domain.UserKind(req.Kind))
	if err != nil {
		return nil, err
	}

	session, err := s.login(ctx, user)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{User: user, Session: session, Created: created}, nil
}

func (s *authService) OrganizationLogin(ctx context.Context, req *domain.OrganizationLoginRequest) (*domain.LoginResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	user, err := s.userRepo.FindByLogin(ctx, req.Login, domain.KindOrganization)
	if err != nil {
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	// Same answer for unknown login and wrong password.
	if user == nil || user.PasswordHash == nil {
		return nil, domain.ErrInvalidCredential
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, domain.ErrInvalidCredential
	}

	session, err := s.login(ctx, user)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{User: user, Session: session}, nil
}

func (s *authService) RegisterOrganization(ctx context.Context, req *domain.RegisterOrganizationRequest) (*domain.LoginResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	existing, err := s.userRepo.FindByLogin(ctx, req.Login, domain.KindOrganization)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing login: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: login already taken", domain.ErrConflict)
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Kind:         domain.KindOrganization,
		Login:        &req.Login,
		PasswordHash: &passwordHash,
		Name:         &req.Name,
	}
	if req.Phone != "" {
		user.Phone = &req.Phone
	}
	user.IsProfileComplete = domain.ProfileComplete(user)

	user, err = s.userRepo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	session, err := s.login(ctx, user)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{User: user, Session: session, Created: true}, nil
}

func (s *authService) GuestLogin(ctx context.Context) (*domain.LoginResult, error) {
	// Guests are never reused; every guest entry mints a fresh identity.
	user, err := s.userRepo.Create(ctx, &domain.User{Kind: domain.KindGuest})
	if err != nil {
		return nil, fmt.Errorf("failed to create guest: %w", err)
	}

	session, err := s.login(ctx, user)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{User: user, Session: session, Created: true}, nil
}

func (s *authService) Logout(ctx context.Context, token string) error {
	if err := s.sessionRepo.Revoke(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.SessionRevoked, map[string]string{"session_id": token}); err != nil {
		logger.WarnContext(ctx, "Failed to publish session event", "error", err)
	}

	return nil
}

func (s *authService) ResolveSession(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	session, err := s.sessionRepo.Resolve(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil {
		return nil, nil, domain.ErrUnauthorized
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if user == nil {
		return nil, nil, domain.ErrUnauthorized
	}

	return user, session, nil
}

func (s *authService) RenewSession(ctx context.Context, token string) error {
	_, err := s.sessionRepo.Renew(ctx, token, s.config.Auth.SessionRenewWindow)
	return err
}

func (s *authService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	user, err := s.userRepo.UpdateProfile(ctx, userID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	// Completeness is derived, never taken from the client.
	complete := domain.ProfileComplete(user)
	if complete != user.IsProfileComplete {
		if err := s.userRepo.SetProfileComplete(ctx, user.ID, complete); err != nil {
			return nil, fmt.Errorf("failed to update profile completeness: %w", err)
		}
		user.IsProfileComplete = complete
	}

	return user, nil
}

func (s *authService) CompleteProfile(ctx context.Context, user *domain.User, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if user.IsProfileComplete {
		return nil, fmt.Errorf("%w: profile already completed", domain.ErrConflict)
	}
	return s.UpdateProfile(ctx, user.ID, req)
}

func (s *authService) CreateEmployee(ctx context.Context, organization *domain.User, req *domain.CreateEmployeeRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	employee, err := s.userRepo.FindByPhone(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up employee: %w", err)
	}

	if employee == nil {
		employee, err = s.userRepo.Create(ctx, &domain.User{
			Kind:           domain.KindEmployee,
			Phone:          &req.Phone,
			Name:           req.Name,
			Email:          req.Email,
			OrganizationID: &organization.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create employee: %w", err)
		}
	} else {
		employee, err = s.userRepo.AssignOrganization(ctx, employee.ID, organization.ID, req.Name, req.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to assign employee to organization: %w", err)
		}
	}

	complete := domain.ProfileComplete(employee)
	if complete != employee.IsProfileComplete {
		if err := s.userRepo.SetProfileComplete(ctx, employee.ID, complete); err != nil {
			return nil, fmt.Errorf("failed to update profile completeness: %w", err)
		}
		employee.IsProfileComplete = complete
	}

	orgName := ""
	if organization.Name != nil {
		orgName = *organization.Name
	}
	if err := s.notifier.SendEmployeeInvitation(ctx, req.Phone, orgName); err != nil {
		logger.ErrorContext(ctx, "Failed to send employee invitation", "error", err, "phone", req.Phone)
	}

	return employee, nil
}

// resolveOrCreate maps a verified phone to an identity, minting an incomplete
// profile on first contact.
func (s *authService) resolveOrCreate(ctx context.Context, phone string, kind domain.UserKind) (*domain.User, bool, error) {
	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}
	if user != nil {
		return user, false, nil
	}

	user, err = s.userRepo.Create(ctx, &domain.User{Kind: kind, Phone: &phone})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	return user, true, nil
}

// login creates a fresh session and makes it the only canonical one for the
// identity. Prior sessions are deactivated, not deleted.
func (s *authService) login(ctx context.Context, user *domain.User) (*domain.Session, error) {
	session, err := s.sessionRepo.Create(ctx, user.ID, user.Kind, s.sessionTTL(user.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if _, err := s.sessionRepo.DeactivateOthers(ctx, user.ID, session.Token); err != nil {
		return nil, fmt.Errorf("failed to deactivate previous sessions: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.SessionCreated, events.SessionCreatedEvent{
		SessionID: session.Token,
		UserID:    user.ID,
		Kind:      string(user.Kind),
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish session event", "error", err)
	}

	return session, nil
}

func (s *authService) sessionTTL(kind domain.UserKind) time.Duration {
	days := s.config.Auth.UserSessionDays
	if kind == domain.KindGuest {
		days = s.config.Auth.GuestSessionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func generateVerificationCode() (string, error) {
	// 4-digit code, 1000-9999.
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
