package auth

import (
	"context"

	"github.com/google/uuid"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/domain/shared"
)

// Permissions understood by the settlement API
const (
	PermSettlementRead   = "settlement:read"
	PermSettlementWrite  = "settlement:write"
	PermSettlementSettle = "settlement:settle"
	PermLedgerExport     = "ledger:export"
)

var _ appsettlement.Authorizer = ClaimsAuthorizer{}

// ClaimsAuthorizer allows Settle for callers whose token carries
// settlement:settle
type ClaimsAuthorizer struct{}

// AuthorizeSettle checks the claims on ctx
func (ClaimsAuthorizer) AuthorizeSettle(ctx context.Context, _ uuid.UUID) error {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return shared.NewDomainError("FORBIDDEN", "Settlement requires an authenticated caller")
	}
	if !claims.HasPermission(PermSettlementSettle) {
		return shared.NewDomainError("FORBIDDEN", "Missing permission "+PermSettlementSettle)
	}
	return nil
}
