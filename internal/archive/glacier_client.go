package archive

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
)

// newGlacierClient loads AWS credentials the default way (environment,
// shared config, instance profile) scoped to the given region.
func newGlacierClient(ctx context.Context, region string) (*glacier.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return glacier.NewFromConfig(cfg), nil
}
