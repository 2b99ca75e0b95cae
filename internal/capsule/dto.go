// AngelaMos | 2026
// dto.go

package capsule

import (
	"time"
)

type CreateRequest struct {
	Email         string   `json:"email"         validate:"required,email,max=255"`
	Name          string   `json:"name"          validate:"required,max=200"`
	DateOfOpening string   `json:"dateOfOpening" validate:"required"`
	Message       string   `json:"message"       validate:"required,max=20000"`
	Type          string   `json:"type"          validate:"required"`
	Media         []string `json:"media"         validate:"omitempty,max=20,dive,max=2048"`
	Links         []string `json:"links"         validate:"omitempty,max=20,dive,url"`
	IsShared      bool     `json:"isShared"`
	AllowedUsers  []string `json:"allowedUsers"  validate:"omitempty,max=100,dive,email"`
}

type AccessRequest struct {
	Email      string `json:"email"      validate:"required,email,max=255"`
	UniqueCode string `json:"uniqueCode" validate:"omitempty,len=8,alphanum"`
}

type DeleteRequest struct {
	Email     string `json:"email"     validate:"required,email,max=255"`
	CapsuleID string `json:"capsuleId" validate:"required,uuid"`
}

// UpdateRequest carries type, creator and isShared only so that attempts
// to change them get a precise error.
type UpdateRequest struct {
	Name          *string   `json:"name"          validate:"omitempty,max=200"`
	Message       *string   `json:"message"       validate:"omitempty,max=20000"`
	DateOfOpening *string   `json:"dateOfOpening"`
	Media         *[]string `json:"media"         validate:"omitempty,max=20,dive,max=2048"`
	Links         *[]string `json:"links"         validate:"omitempty,max=20,dive,url"`
	AllowedUsers  []string  `json:"allowedUsers"  validate:"omitempty,max=100,dive,email"`
	Type          *string   `json:"type"`
	Creator       *string   `json:"creator"`
	IsShared      *bool     `json:"isShared"`
}

type CapsuleResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Creator       string    `json:"creator"`
	Name          string    `json:"name"`
	Message       string    `json:"message"`
	Media         []string  `json:"media"`
	Links         []string  `json:"links"`
	IsShared      bool      `json:"isShared"`
	UniqueCode    string    `json:"uniqueCode,omitempty"`
	AllowedUsers  []string  `json:"allowedUsers,omitempty"`
	ViewCount     int       `json:"viewCount"`
	DateOfOpening string    `json:"dateOfOpening"`
	CreatedAt     time.Time `json:"createdAt"`
}

type PublicCapsuleResponse struct {
	ID            string    `json:"id"`
	Creator       string    `json:"creator"`
	Name          string    `json:"name"`
	DateOfOpening string    `json:"dateOfOpening"`
	Sealed        bool      `json:"sealed"`
	TeaserMessage string    `json:"teaserMessage,omitempty"`
	Message       *string   `json:"message,omitempty"`
	Media         []string  `json:"media,omitempty"`
	Links         []string  `json:"links,omitempty"`
	ViewCount     int       `json:"viewCount,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type PublicListResponse struct {
	Capsules []PublicCapsuleResponse `json:"capsules"`
}

type CapsuleListResponse struct {
	Capsules []CapsuleResponse `json:"capsules"`
}

type AccessResponse struct {
	Capsule CapsuleResponse `json:"capsule"`
	Charged bool            `json:"charged"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func formatDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// ToOwnerResponse includes the access code and allowed list.
func ToOwnerResponse(c *Capsule) CapsuleResponse {
	resp := ToViewerResponse(c)
	resp.UniqueCode = c.Code()
	resp.AllowedUsers = stringsOrEmpty(c.AllowedEmails)
	return resp
}

// ToViewerResponse is what a granted non-owner sees.
func ToViewerResponse(c *Capsule) CapsuleResponse {
	return CapsuleResponse{
		ID:            c.ID,
		Type:          c.Kind,
		Creator:       c.CreatorID,
		Name:          c.Name,
		Message:       c.Message,
		Media:         stringsOrEmpty(c.Media),
		Links:         stringsOrEmpty(c.Links),
		IsShared:      c.IsShared,
		ViewCount:     c.ViewCount,
		DateOfOpening: formatDay(c.UnlockDate),
		CreatedAt:     c.CreatedAt,
	}
}

func ToOwnerResponseList(capsules []Capsule) []CapsuleResponse {
	out := make([]CapsuleResponse, 0, len(capsules))
	for i := range capsules {
		out = append(out, ToOwnerResponse(&capsules[i]))
	}
	return out
}

func ToPublicResponse(v PublicView) PublicCapsuleResponse {
	resp := PublicCapsuleResponse{
		ID:            v.ID,
		Creator:       v.CreatorID,
		Name:          v.Name,
		DateOfOpening: formatDay(v.UnlockDate),
		Sealed:        v.Sealed,
		TeaserMessage: v.Teaser,
		ViewCount:     v.ViewCount,
		CreatedAt:     v.CreatedAt,
	}
	if v.Content != nil {
		msg := v.Content.Message
		resp.Message = &msg
		resp.Media = stringsOrEmpty(v.Content.Media)
		resp.Links = stringsOrEmpty(v.Content.Links)
	}
	return resp
}

func stringsOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
