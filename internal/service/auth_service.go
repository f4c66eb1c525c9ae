package service

import (
	"cad_practice_backend/internal/config"
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/onshape"
	"cad_practice_backend/internal/repository"
	"cad_practice_backend/internal/util"
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// How long before expiry a token is refreshed when a launch resumes or an
// admin credential is handed out.
const tokenRefreshLead = time.Hour

// How long a live attempt survives a relaunch of the extension before it is
// considered stale.
const relaunchWindow = time.Hour

type oauthAPI interface {
	AuthorizeURL() string
	ExchangeCode(ctx context.Context, code string) (*onshape.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*onshape.Token, error)
}

type sessionAPI interface {
	GetSessionInfo(ctx context.Context, token, domain string) (*onshape.SessionInfo, error)
}

// LaunchParams are the query parameters the vendor passes when the
// extension iframe is opened inside a document.
type LaunchParams struct {
	OSUserID    string            `form:"userId" binding:"required"`
	Domain      string            `form:"server"`
	DocumentID  string            `form:"did" binding:"required"`
	WVM         string            `form:"wvm" binding:"required"`
	WVMID       string            `form:"wvmid" binding:"required"`
	ElementID   string            `form:"eid" binding:"required"`
	ElementType model.ElementType `form:"etype"`
}

// LaunchResult tells the controller whether the user can continue straight
// into the app or must first complete the OAuth round trip.
type LaunchResult struct {
	Resumed     bool   `json:"resumed"`               // a live attempt is still in progress
	Token       string `json:"token,omitempty"`       // app JWT, set when no OAuth trip is needed
	RedirectURL string `json:"redirectUrl,omitempty"` // OAuth authorize URL otherwise
}

var ErrNotMainWorkspace = errors.New("app must be launched in the main workspace")

type AuthService struct {
	UserRepo *repository.UserRepository
	OAuth    oauthAPI
	Session  sessionAPI
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, oauth oauthAPI, session sessionAPI, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		OAuth:    oauth,
		Session:  session,
		Cfg:      cfg,
	}
}

// BeginLaunch handles the extension being opened. A user relaunching within
// an hour of starting a question, in the same element, resumes their attempt
// without a new OAuth trip. Everyone else has their working environment
// recorded and is sent to the vendor's authorize page.
func (s *AuthService) BeginLaunch(ctx context.Context, params LaunchParams) (*LaunchResult, error) {
	if params.WVM != "w" {
		return nil, ErrNotMainWorkspace
	}

	user, err := s.UserRepo.FindByOSUserID(params.OSUserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err == nil && user.IsModelling && user.LastStart != nil &&
		user.LastStart.Add(relaunchWindow).After(time.Now()) &&
		user.ElementID == params.ElementID {
		if err := s.EnsureFreshToken(ctx, user, tokenRefreshLead); err != nil {
			return nil, err
		}
		token, err := util.GenerateJWT(user.ID, user.OSUserID, util.RoleUser, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
		if err != nil {
			return nil, err
		}
		return &LaunchResult{Resumed: true, Token: token}, nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = &model.AuthUser{OSUserID: params.OSUserID}
	}
	user.Domain = params.Domain
	user.DocumentID = params.DocumentID
	user.WorkspaceID = params.WVMID
	user.ElementID = params.ElementID
	user.ElementType = params.ElementType

	if user.ID == 0 {
		err = s.UserRepo.Create(user)
	} else {
		err = s.UserRepo.Update(user)
	}
	if err != nil {
		return nil, err
	}

	return &LaunchResult{RedirectURL: s.OAuth.AuthorizeURL()}, nil
}

// CompleteOAuth finishes the authorization round trip: the code is traded
// for tokens, the vendor session identifies the user, and an app JWT is
// issued.
func (s *AuthService) CompleteOAuth(ctx context.Context, code string) (string, *model.AuthUser, error) {
	token, err := s.OAuth.ExchangeCode(ctx, code)
	if err != nil {
		return "", nil, util.ErrApiUnavailable
	}

	info, err := s.Session.GetSessionInfo(ctx, token.AccessToken, "")
	if err != nil {
		return "", nil, util.ErrApiUnavailable
	}

	user, err := s.UserRepo.FindByOSUserID(info.ID)
	if err != nil {
		// Launch must come through BeginLaunch first; an unknown session
		// user has nothing to attach the tokens to.
		return "", nil, util.ErrUserNotFound
	}

	user.AccessToken = token.AccessToken
	user.RefreshToken = token.RefreshToken
	user.ExpiresAt = &token.ExpiresAt

	// Reviewer status follows the reviewer roster.
	if reviewer, rerr := s.UserRepo.FindReviewer(user.OSUserID); rerr == nil {
		user.IsReviewer = reviewer.IsActive
	} else {
		user.IsReviewer = false
	}

	if err := s.UserRepo.Update(user); err != nil {
		return "", nil, err
	}

	jwt, err := util.GenerateJWT(user.ID, user.OSUserID, util.RoleUser, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, err
	}
	return jwt, user, nil
}

// AdminLogin authenticates a password-based admin account.
func (s *AuthService) AdminLogin(username, password string) (string, error) {
	admin, err := s.UserRepo.FindAdminByUsername(username)
	if err != nil {
		return "", util.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", util.ErrInvalidCredentials
	}
	return util.GenerateJWT(admin.ID, "", util.RoleAdmin, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
}

// ChangeAdminPassword rotates a password-based admin credential.
func (s *AuthService) ChangeAdminPassword(username, oldPassword, newPassword string) error {
	admin, err := s.UserRepo.FindAdminByUsername(username)
	if err != nil {
		return util.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(oldPassword)); err != nil {
		return util.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin.PasswordHash = string(hash)
	return s.UserRepo.UpdateAdmin(admin)
}

// EnsureFreshToken refreshes the user's OAuth credential when it expires
// within the given lead time, persisting the new pair. Refresh must
// complete before any vendor call proceeds.
func (s *AuthService) EnsureFreshToken(ctx context.Context, user *model.AuthUser, within time.Duration) error {
	if !user.TokenExpiresWithin(within) {
		return nil
	}
	token, err := s.OAuth.RefreshToken(ctx, user.RefreshToken)
	if err != nil {
		return util.ErrApiUnavailable
	}
	user.AccessToken = token.AccessToken
	user.RefreshToken = token.RefreshToken
	user.ExpiresAt = &token.ExpiresAt
	return s.UserRepo.Update(user)
}

// AdminCredential resolves the main admin reviewer's vendor token, used for
// admin-side API calls such as fetching reference geometry. The returned
// credential is explicit; nothing in the call chain relies on ambient
// authority.
func (s *AuthService) AdminCredential(ctx context.Context) (string, error) {
	reviewer, err := s.UserRepo.FindMainAdmin()
	if err != nil {
		return "", errors.New("no main admin has been assigned from the reviewers yet")
	}
	admin, err := s.UserRepo.FindByOSUserID(reviewer.OSUserID)
	if err != nil {
		return "", errors.New("the main admin has not signed in to the app yet")
	}
	if err := s.EnsureFreshToken(ctx, admin, tokenRefreshLead); err != nil {
		return "", err
	}
	return admin.AccessToken, nil
}
