package distribution

import (
	"context"

	"github.com/xraph/valueflow/id"
)

// Store persists distributions together with their events and disbursement.
type Store interface {
	CreateDistribution(ctx context.Context, d *Distribution) error
	GetDistribution(ctx context.Context, distID id.DistributionID) (*Distribution, error)
	ListDistributions(ctx context.Context, opts ListOpts) ([]*Distribution, error)
}
