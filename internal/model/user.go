package model

import "time"

// ElementType mirrors the vendor's element kinds; the raw values are
// used directly in API paths.
type ElementType string

const (
	ElementTypeNA         ElementType = "N/A"
	ElementTypePartStudio ElementType = "partstudios"
	ElementTypeAssembly   ElementType = "assemblies"
	ElementTypeAll        ElementType = "all"
)

// InitContext is the pending initiation context of an attempt. It carries
// identifiers created by a question's initiate action that the later
// evaluate call needs (e.g. the derived import feature that must be exempt
// from the anti-cheat scan). It is cleared on every new initiate.
type InitContext struct {
	DerivedFeatureID    string   `json:"derivedFeatureId,omitempty"`
	AssemblyInstanceIDs []string `json:"assemblyInstanceIds,omitempty"`
}

// AuthUser is one row per vendor (Onshape) user that has opened the app.
// It stores the OAuth tokens for API calls, the user's working environment,
// and the live attempt state (at most one attempt in progress per user).
type AuthUser struct {
	BaseModel

	OSUserID   string `gorm:"size:30;uniqueIndex;not null" json:"osUserId"`
	IsReviewer bool   `gorm:"default:false" json:"isReviewer"`

	// Working environment of the user inside the vendor tool
	Domain      string      `gorm:"size:100" json:"domain"` // https://cad.onshape.com for non-enterprise accounts
	DocumentID  string      `gorm:"size:30" json:"documentId"`
	WorkspaceID string      `gorm:"size:30" json:"workspaceId"`
	ElementID   string      `gorm:"size:30" json:"elementId"`
	ElementType ElementType `gorm:"size:40" json:"elementType"`

	// OAuth tokens and expiry tracking
	AccessToken  string     `gorm:"size:100" json:"-"`
	RefreshToken string     `gorm:"size:100" json:"-"`
	ExpiresAt    *time.Time `json:"-"`

	// Live attempt state; only meaningful while IsModelling is true
	IsModelling       bool         `gorm:"default:false" json:"isModelling"`
	LastStart         *time.Time   `json:"lastStart,omitempty"`
	CurrQuestionType  QuestionType `gorm:"size:4" json:"currQuestionType"`
	CurrQuestionID    uint         `json:"currQuestionId"`
	CurrStep          uint         `json:"currStep"` // multi-step questions only
	StartMicroversion string       `gorm:"size:30" json:"-"`
	// EndMicroversion doubles as the failure marker: it is empty until the
	// first failed submission of the attempt.
	EndMicroversion string      `gorm:"size:30" json:"-"`
	InitContext     InitContext `gorm:"serializer:json" json:"-"`
}

func (AuthUser) TableName() string {
	return "auth_users"
}

// TokenExpiresWithin reports whether the user's access token expires before
// now+d. Users with no recorded expiry are treated as expired.
func (u *AuthUser) TokenExpiresWithin(d time.Duration) bool {
	if u.ExpiresAt == nil {
		return true
	}
	return u.ExpiresAt.Before(time.Now().Add(d))
}

// Reviewer grants access to unpublished questions so a question can be
// tried out before release. The main admin's token is used for all
// admin-side vendor API calls.
type Reviewer struct {
	BaseModel

	OSUserID    string `gorm:"size:30;uniqueIndex;not null" json:"osUserId"`
	UserName    string `gorm:"size:500;uniqueIndex" json:"userName"`
	IsMainAdmin bool   `gorm:"default:false" json:"isMainAdmin"`
	IsActive    bool   `gorm:"default:true" json:"isActive"`
}

func (Reviewer) TableName() string {
	return "reviewers"
}

type AdminRole string

const (
	AdminRoleAdmin    AdminRole = "admin"
	AdminRoleReviewer AdminRole = "reviewer"
)

// AdminAccount is a password login for the admin API (question management,
// telemetry browsing). Regular users never have one; they sign in through
// the vendor's OAuth flow instead.
type AdminAccount struct {
	BaseModel

	Username     string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	Role         AdminRole `gorm:"size:20;default:'admin'" json:"role"`
}

func (AdminAccount) TableName() string {
	return "admin_accounts"
}
