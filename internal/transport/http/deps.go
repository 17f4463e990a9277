package http

import (
	"github.com/go-auth-api/internal/application/notify"
	"github.com/go-auth-api/internal/infrastructure/dynamo"
	"github.com/go-auth-api/internal/infrastructure/token"
)

// Deps holds the infrastructure the router wires into services and handlers.
type Deps struct {
	UserRepo       *dynamo.UserRepo
	PasscodeRepo   *dynamo.PasscodeRepo
	RevocationRepo *dynamo.RevocationRepo
	RoleRepo       *dynamo.RoleRepo
	AuditLogRepo   *dynamo.AuditLogRepo
	TokenProvider  *token.Provider
	Notifier       *notify.Worker
}
