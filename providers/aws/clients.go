package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"
)

// Clients bundles the AWS service clients the orchestrator uses.
type Clients struct {
	S3           *s3.Client
	SQS          *sqs.Client
	SageMaker    *sagemaker.Client
	KinesisVideo *kinesisvideo.Client
}

// NewClients creates the AWS service clients from the default credential
// chain.
func NewClients(ctx context.Context, region string) (*Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	return &Clients{
		S3:           s3.NewFromConfig(cfg),
		SQS:          sqs.NewFromConfig(cfg),
		SageMaker:    sagemaker.NewFromConfig(cfg),
		KinesisVideo: kinesisvideo.NewFromConfig(cfg),
	}, nil
}
