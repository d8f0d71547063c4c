package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"roomchat/cmd/identity"
	"roomchat/cmd/security/token"
)

// PasswordHasher is the password hashing boundary (satisfied by password.Config).
type PasswordHasher interface {
	HashWithSalt(password string, salt []byte) (string, error)
	Verify(encodedHash, password string) (bool, error)
}

// Principal identifies an authenticated user.
type Principal struct {
	UserID               int64
	Name                 string
	RequiresVerification bool
}

// LoginResult is returned by Login and AutoLogin.
// Token is the plain auto-login token; it is empty when none was requested.
type LoginResult struct {
	Principal
	Token string
}

// Service implements registration, login, token auto-login and email verification.
type Service struct {
	cfg     Config
	log     *slog.Logger
	users   identity.Store
	hasher  PasswordHasher
	email   EmailSender
	metrics *Metrics
	lock    *lockout
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithEmailSender sets the verification code sender (default: NoopEmailSender).
func WithEmailSender(e EmailSender) Option {
	return func(s *Service) {
		if e != nil {
			s.email = e
		}
	}
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, log *slog.Logger, users identity.Store, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if users == nil {
		return nil, errors.New("auth: nil user store")
	}
	if hasher == nil {
		return nil, errors.New("auth: nil password hasher")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		log:    log,
		users:  users,
		hasher: hasher,
		email:  NoopEmailSender{},
		lock:   newLockout(cfg),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CheckAvailable reports whether value is still free in the given users column.
// It has no side effects.
func (s *Service) CheckAvailable(ctx context.Context, field identity.Field, value string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, nil
	}
	exists, err := s.users.Exists(ctx, field, value)
	if err != nil {
		if identity.IsInvalidInput(err) {
			return false, invalidInput(err)
		}
		return false, err
	}
	return !exists, nil
}

// Register creates a new user with a salted password hash, a fresh verification
// code and an empty token list. The caller treats the returned principal as logged in.
func (s *Service) Register(ctx context.Context, email, name, password string) (p Principal, err error) {
	defer func() { s.metrics.observe("register", err) }()

	email = identity.NormalizeEmail(email)
	name = identity.NormalizeName(name)
	if email == "" || name == "" {
		return Principal{}, invalidInput(errors.New("missing email or name"))
	}

	taken, err := s.users.Exists(ctx, identity.FieldEmail, email)
	if err != nil {
		return Principal{}, err
	}
	if taken {
		return Principal{}, ErrEmailTaken
	}
	taken, err = s.users.Exists(ctx, identity.FieldName, name)
	if err != nil {
		return Principal{}, err
	}
	if taken {
		return Principal{}, ErrNameTaken
	}

	salt, err := token.NewSalt()
	if err != nil {
		return Principal{}, fmt.Errorf("auth: salt: %w", err)
	}
	hash, err := s.hasher.HashWithSalt(password, []byte(salt))
	if err != nil {
		return Principal{}, invalidInput(err)
	}
	code, err := token.NewVerificationCode()
	if err != nil {
		return Principal{}, fmt.Errorf("auth: verification code: %w", err)
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Name:             name,
		Email:            email,
		PasswordHash:     hash,
		Salt:             salt,
		VerificationCode: code,
		Now:              s.now(),
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if field, ok := identity.ConflictField(err); ok {
			if field == "name" {
				return Principal{}, ErrNameTaken
			}
			return Principal{}, ErrEmailTaken
		}
		return Principal{}, err
	}

	s.sendCode(ctx, u, code)
	s.log.Info("auth.register", "user_id", u.ID)

	return Principal{UserID: u.ID, Name: u.Name, RequiresVerification: true}, nil
}

// Login checks email + password. When wantToken is set, a new auto-login token
// is issued (evicting the oldest beyond MaxTokens).
// Repeated failures lock the email out progressively (ErrLockedOut).
func (s *Service) Login(ctx context.Context, email, password string, wantToken bool) (res LoginResult, err error) {
	defer func() { s.metrics.observe("login", err) }()

	key := identity.NormalizeEmail(email)
	now := s.now()
	if locked, retry := s.lock.check(key, now); locked {
		s.log.Warn("auth.login.locked", "retry_after_s", int64(retry.Seconds()))
		return LoginResult{}, ErrLockedOut
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			s.burnVerify(password)
			s.lock.fail(key, now)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		s.log.Error("auth.login.hash_invalid", "user_id", u.ID, "err", err)
		return LoginResult{}, ErrInvalidCredentials
	}
	if !ok {
		s.lock.fail(key, now)
		return LoginResult{}, ErrInvalidCredentials
	}
	s.lock.reset(key)

	res = LoginResult{Principal: principalOf(u)}

	if wantToken {
		plain, digest, err := newToken()
		if err != nil {
			return LoginResult{}, fmt.Errorf("auth: token: %w", err)
		}
		if err := s.users.UpdateTokens(ctx, u.ID, func(cur []string) ([]string, error) {
			return pushToken(cur, digest, s.cfg.MaxTokens), nil
		}); err != nil {
			return LoginResult{}, err
		}
		res.Token = plain
	}

	s.touch(ctx, u.ID)
	return res, nil
}

// AutoLogin redeems a single-use token.
//
// Security model:
//   - The token list is read and rewritten atomically per user.
//   - A matching token is removed and a replacement is issued in the same update.
//   - A non-matching token for a known email is treated as theft: every token
//     of the user is revoked and ErrTokenMismatch is returned. Blank and
//     oversized tokens never match and take the same path.
//   - An unknown email is rejected without touching any token list.
func (s *Service) AutoLogin(ctx context.Context, email, presented string) (res LoginResult, err error) {
	defer func() { s.metrics.observe("autologin", err) }()

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	presented = strings.TrimSpace(presented)
	wellFormed := presented != "" && len(presented) <= s.cfg.MaxTokenLength

	var presentedDigest string
	if wellFormed {
		presentedDigest = token.HashSessionTokenHex(presented)
	}
	plain, digest, err := newToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: token: %w", err)
	}

	matched := false
	revoked := 0
	err = s.users.UpdateTokens(ctx, u.ID, func(cur []string) ([]string, error) {
		rest, ok := cur, false
		if wellFormed {
			rest, ok = takeToken(cur, presentedDigest)
		}
		if !ok {
			matched, revoked = false, len(cur)
			return []string{}, nil
		}
		matched = true
		return pushToken(rest, digest, s.cfg.MaxTokens), nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	if !matched {
		s.log.Warn("auth.autologin.token_mismatch", "user_id", u.ID, "revoked", revoked)
		return LoginResult{}, ErrTokenMismatch
	}

	s.touch(ctx, u.ID)
	return LoginResult{Principal: principalOf(u), Token: plain}, nil
}

// Logout removes one auto-login token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, userID int64, presented string) (err error) {
	defer func() { s.metrics.observe("logout", err) }()

	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > s.cfg.MaxTokenLength {
		return nil
	}

	digest := token.HashSessionTokenHex(presented)
	return s.users.UpdateTokens(ctx, userID, func(cur []string) ([]string, error) {
		rest, _ := takeToken(cur, digest)
		return rest, nil
	})
}

// VerificationCode returns the pending code, or nil once verified.
func (s *Service) VerificationCode(ctx context.Context, userID int64) (*string, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.VerificationCode, nil
}

// VerifyEmail clears the pending code when code matches it.
// Verifying an already verified account succeeds.
func (s *Service) VerifyEmail(ctx context.Context, userID int64, code string) (err error) {
	defer func() { s.metrics.observe("verify_email", err) }()

	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.VerificationCode == nil {
		return nil
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if !token.Equal(code, *u.VerificationCode) {
		return ErrVerificationMismatch
	}
	if err := s.users.SetVerificationCode(ctx, userID, nil); err != nil {
		return err
	}

	s.log.Info("auth.verify_email", "user_id", userID)
	return nil
}

// NewVerificationCode replaces the pending code and sends it.
// It returns nil when the account is already verified.
func (s *Service) NewVerificationCode(ctx context.Context, userID int64) (*string, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.VerificationCode == nil {
		return nil, nil
	}

	code, err := token.NewVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("auth: verification code: %w", err)
	}
	if err := s.users.SetVerificationCode(ctx, userID, &code); err != nil {
		return nil, err
	}

	s.sendCode(ctx, u, code)
	return &code, nil
}

func (s *Service) sendCode(ctx context.Context, u identity.User, code string) {
	err := s.email.SendVerificationCode(ctx, VerificationMessage{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Code:   code,
	})
	if err != nil {
		s.log.Warn("auth.verification.send_fail", "user_id", u.ID, "err", err)
	}
}

// touch refreshes last_online. Failure does not fail the login.
func (s *Service) touch(ctx context.Context, userID int64) {
	if err := s.users.TouchLastOnline(ctx, userID, s.now()); err != nil {
		s.log.Warn("auth.last_online.fail", "user_id", userID, "err", err)
	}
}

// burnVerify spends one hash verification so unknown emails cost as much as wrong passwords.
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		salt, err := token.NewSalt()
		if err != nil {
			return
		}
		s.dummyHash, _ = s.hasher.HashWithSalt("roomchat-dummy-password", []byte(salt))
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}

func principalOf(u identity.User) Principal {
	return Principal{
		UserID:               u.ID,
		Name:                 u.Name,
		RequiresVerification: u.VerificationCode != nil,
	}
}
