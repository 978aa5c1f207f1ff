package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	kvtypes "github.com/aws/aws-sdk-go-v2/service/kinesisvideo/types"
	"github.com/pkg/errors"
)

const streamRetentionHours = 24

// TelemetryProvisioner stands up per-job video streams on Kinesis Video.
type TelemetryProvisioner struct {
	client *kinesisvideo.Client
}

// NewTelemetryProvisioner creates a new Kinesis Video provisioner
func NewTelemetryProvisioner(client *kinesisvideo.Client) *TelemetryProvisioner {
	return &TelemetryProvisioner{client: client}
}

// CreateChannel creates the stream for a job and returns its ARN. A
// stream left over from a redelivered dispatch message is reused.
func (p *TelemetryProvisioner) CreateChannel(ctx context.Context, name string) (string, error) {
	out, err := p.client.CreateStream(ctx, &kinesisvideo.CreateStreamInput{
		StreamName:           aws.String(name),
		DataRetentionInHours: aws.Int32(streamRetentionHours),
	})
	if err == nil {
		return aws.ToString(out.StreamARN), nil
	}

	var inUse *kvtypes.ResourceInUseException
	if !errors.As(err, &inUse) {
		return "", errors.Wrapf(err, "create stream %s", name)
	}

	desc, err := p.client.DescribeStream(ctx, &kinesisvideo.DescribeStreamInput{
		StreamName: aws.String(name),
	})
	if err != nil {
		return "", errors.Wrapf(err, "describe existing stream %s", name)
	}
	return aws.ToString(desc.StreamInfo.StreamARN), nil
}
