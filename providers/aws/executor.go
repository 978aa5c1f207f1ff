package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"rl-orchestrator/core/platform"
)

// ExecutorConfig carries the fixed SageMaker settings shared by every
// submitted job.
type ExecutorConfig struct {
	RoleARN       string
	TrainingImage string
	InstanceType  string
	Bucket        string
	VolumeSizeGB  int32
}

// Executor runs jobs as SageMaker training jobs. The orchestrator's job
// name is the SageMaker training-job name, which makes submission
// idempotent and lets Describe and Stop work before a handle is known.
type Executor struct {
	client *sagemaker.Client
	cfg    ExecutorConfig
}

// NewExecutor creates a new SageMaker-backed executor
func NewExecutor(client *sagemaker.Client, cfg ExecutorConfig) *Executor {
	if cfg.VolumeSizeGB == 0 {
		cfg.VolumeSizeGB = 30
	}
	return &Executor{client: client, cfg: cfg}
}

// Submit starts a training job and returns its ARN.
func (e *Executor) Submit(ctx context.Context, sub platform.JobSubmission) (string, error) {
	env := map[string]string{
		"CONFIG_LOCATION": "s3://" + e.cfg.Bucket + "/" + sub.ConfigLocation,
	}
	for k, v := range sub.Environment {
		env[k] = v
	}

	out, err := e.client.CreateTrainingJob(ctx, &sagemaker.CreateTrainingJobInput{
		TrainingJobName: aws.String(sub.JobName),
		RoleArn:         aws.String(e.cfg.RoleARN),
		AlgorithmSpecification: &smtypes.AlgorithmSpecification{
			TrainingImage:     aws.String(e.cfg.TrainingImage),
			TrainingInputMode: smtypes.TrainingInputModeFile,
		},
		OutputDataConfig: &smtypes.OutputDataConfig{
			S3OutputPath: aws.String("s3://" + e.cfg.Bucket + "/" + sub.OutputLocation),
		},
		ResourceConfig: &smtypes.ResourceConfig{
			InstanceCount:  aws.Int32(1),
			InstanceType:   smtypes.TrainingInstanceType(e.cfg.InstanceType),
			VolumeSizeInGB: aws.Int32(e.cfg.VolumeSizeGB),
		},
		StoppingCondition: &smtypes.StoppingCondition{
			MaxRuntimeInSeconds: aws.Int32(int32(sub.MaxTimeInMinutes) * 60),
		},
		Environment: env,
	})
	if err != nil {
		return "", errors.Wrapf(err, "create training job %s", sub.JobName)
	}
	return aws.ToString(out.TrainingJobArn), nil
}

// Describe reports the coarse execution state for a job name. A job
// SageMaker does not know yet maps to the not-found status rather than an
// error, since the cancel protocol polls for exactly that case.
func (e *Executor) Describe(ctx context.Context, jobName string) (platform.ExecutionState, error) {
	out, err := e.client.DescribeTrainingJob(ctx, &sagemaker.DescribeTrainingJobInput{
		TrainingJobName: aws.String(jobName),
	})
	if err != nil {
		if isMissingTrainingJob(err) {
			return platform.ExecutionState{Status: platform.ExecutionStatusNotFound}, nil
		}
		return platform.ExecutionState{}, errors.Wrapf(err, "describe training job %s", jobName)
	}

	state := platform.ExecutionState{
		Status:          mapStatus(out.TrainingJobStatus),
		FailureReason:   aws.ToString(out.FailureReason),
		BillableMinutes: int(aws.ToInt32(out.BillableTimeInSeconds)) / 60,
	}
	return state, nil
}

// Stop requests a stop for a job name.
func (e *Executor) Stop(ctx context.Context, jobName string) error {
	_, err := e.client.StopTrainingJob(ctx, &sagemaker.StopTrainingJobInput{
		TrainingJobName: aws.String(jobName),
	})
	return errors.Wrapf(err, "stop training job %s", jobName)
}

func mapStatus(s smtypes.TrainingJobStatus) platform.ExecutionStatus {
	switch s {
	case smtypes.TrainingJobStatusInProgress:
		return platform.ExecutionStatusInProgress
	case smtypes.TrainingJobStatusStopping:
		return platform.ExecutionStatusStopping
	case smtypes.TrainingJobStatusCompleted:
		return platform.ExecutionStatusCompleted
	case smtypes.TrainingJobStatusFailed:
		return platform.ExecutionStatusFailed
	case smtypes.TrainingJobStatusStopped:
		return platform.ExecutionStatusStopped
	default:
		return platform.ExecutionStatusPending
	}
}

// isMissingTrainingJob detects SageMaker's "no such training job" answer,
// which arrives as a ValidationException rather than a typed not-found
// error.
func isMissingTrainingJob(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationException" &&
		strings.Contains(apiErr.ErrorMessage(), "Requested resource not found")
}
