package addon

import (
	"context"
)

// JobResult describes one compute job on the provider side.
type JobResult struct {
	JobID     string `json:"job_id"`
	JobName   string `json:"job_name,omitempty"`
	JobStatus string `json:"job_status"`
	Output    string `json:"output,omitempty"`
}

// JobSubmitter submits a compute job. Runs deferred: submission can take
// longer than an inbound request allows.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, jobName, payload string) (JobResult, error)
}

// JobInfoGetter looks up the state of a previously submitted job.
type JobInfoGetter interface {
	GetJobInfo(ctx context.Context, jobID string) (JobResult, error)
}

type submitJobArgs struct {
	JobName string `json:"job_name"`
	Payload string `json:"payload"`
}

type jobInfoArgs struct {
	JobID string `json:"job_id"`
}

const submitJobSchema = `{
	"type": "object",
	"properties": {
		"job_name": {"type": "string"},
		"payload": {"type": "string"}
	},
	"required": ["payload"],
	"additionalProperties": false
}`

const jobInfoSchema = `{
	"type": "object",
	"properties": {"job_id": {"type": "string"}},
	"required": ["job_id"],
	"additionalProperties": false
}`

// ComputingInterface declares every computing addon operation.
var ComputingInterface = &Interface{
	Name: InterfaceComputing,
	Operations: []OperationDeclaration{
		declareOperation("submit_job", CapabilityUpdate, ModeDeferred, submitJobSchema,
			func(ctx context.Context, imp JobSubmitter, args submitJobArgs) (any, error) {
				return imp.SubmitJob(ctx, args.JobName, args.Payload)
			}),
		declareOperation("get_job_info", CapabilityAccess, ModeImmediate, jobInfoSchema,
			func(ctx context.Context, imp JobInfoGetter, args jobInfoArgs) (any, error) {
				return imp.GetJobInfo(ctx, args.JobID)
			}),
	},
}
