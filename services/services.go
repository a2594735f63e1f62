package services

import (
	"net/http"

	"feidelogin/authenticator"
	"feidelogin/repositories"
)

// Services holds all service instances
type Services struct {
	Resources *ResourceService
	Audit     *AuditService
}

// NewServices creates and initializes all services
func NewServices(repos *repositories.Repositories, provider authenticator.Provider, groupsBaseURI string, client *http.Client) *Services {
	return &Services{
		Resources: NewResourceService(provider, groupsBaseURI, client),
		Audit:     NewAuditService(repos.Audit),
	}
}
