package repo

import (
	"context"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"

	"github.com/plantops/site-sync-service/internal/models/m_ledger"
)

// LedgerRepo is the Spanner implementation of the applied-correlations
// ledger read side. The authoritative check happens inside the apply
// transaction; this fast path keeps duplicates from burning a read-write
// transaction each.
type LedgerRepo struct {
	client *spanner.Client
}

func NewLedgerRepo(client *spanner.Client) *LedgerRepo {
	return &LedgerRepo{client: client}
}

// Applied reports whether correlationID exists in the ledger.
func (r *LedgerRepo) Applied(ctx context.Context, correlationID string) (bool, error) {
	_, err := r.client.Single().ReadRow(ctx, m_ledger.TableName,
		spanner.Key{correlationID}, []string{m_ledger.ColCorrelationID})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
