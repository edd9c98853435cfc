package models

import (
	"time"

	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/strings"
	"shikkha/pkg/validation"
)

// Profile describes the institution behind an issuer wallet. Profiles are
// self-asserted and play no part in verification.
type Profile struct {
	Wallet       id.Address
	Name         string
	Website      string
	LogoURL      string
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// RegisterRequest is a wallet owner's registration or update of its profile.
type RegisterRequest struct {
	Name    string `json:"name" validate:"required,notblank,min=3,max=200,institution_name"`
	Website string `json:"website" validate:"required,max=2048,http_url"`
	LogoURL string `json:"logo_url" validate:"required,max=2048,logo_url"`
}

func (r *RegisterRequest) Normalize() {
	strings.TrimFields(&r.Name, &r.Website, &r.LogoURL)
	r.Name = strings.CollapseSpaces(r.Name)
}

func (r *RegisterRequest) Validate() error {
	return validation.Validate(r)
}
