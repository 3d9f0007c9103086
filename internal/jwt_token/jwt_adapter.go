package jwttoken

import (
	"context"

	"certify/internal/access"
)

// Adapter exposes JWTService as an access.Authenticator.
type Adapter struct {
	service *JWTService
}

func NewAdapter(service *JWTService) *Adapter {
	return &Adapter{service: service}
}

func (a *Adapter) Authenticate(_ context.Context, credential string) (access.Principal, error) {
	claims, err := a.service.ValidateToken(credential)
	if err != nil {
		return access.Principal{}, err
	}
	return ToPrincipal(claims), nil
}

// ToPrincipal maps claims to a principal. Only role=admin grants the admin capability.
func ToPrincipal(claims *Claims) access.Principal {
	caps := []access.Capability{access.CapabilityPublic}
	if claims.Role == RoleAdmin {
		caps = append(caps, access.CapabilityAdmin)
	}
	return access.Principal{
		AdminID:      claims.AdminID,
		Username:     claims.Username,
		Capabilities: caps,
	}
}
