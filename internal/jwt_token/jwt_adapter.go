package jwttoken

import (
	authmw "shikkha/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes JWTService through the auth middleware contract.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	caller, err := claims.Caller()
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		Caller:     caller,
		JTI:        claims.ID,
		APIVersion: claims.APIVersion(),
	}, nil
}
