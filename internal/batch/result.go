package batch

import "time"

// Status is the outcome of one item.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusQuota     Status = "quota_exhausted"
	StatusCanceled  Status = "canceled"
)

// Stage names the step an item was in when it stopped.
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageTransform Stage = "transform"
	StageRewrite   Stage = "rewrite"
	StagePublish   Stage = "publish"
	StageCommit    Stage = "commit"
)

// ItemResult records what happened to one item.
type ItemResult struct {
	ItemID       string        `yaml:"item_id"`
	Kind         string        `yaml:"kind"`
	Status       Status        `yaml:"status"`
	Stage        Stage         `yaml:"stage,omitempty"`
	Strategy     string        `yaml:"strategy,omitempty"`
	PublishedID  string        `yaml:"published_id,omitempty"`
	FailureClass string        `yaml:"failure_class,omitempty"`
	Error        string        `yaml:"error,omitempty"`
	Duration     time.Duration `yaml:"duration"`
}

// Result summarizes a batch. Pending counts the items still outstanding
// after the batch.
type Result struct {
	Succeeded       int          `yaml:"succeeded"`
	Failed          int          `yaml:"failed"`
	Skipped         int          `yaml:"skipped"`
	Pending         int          `yaml:"pending"`
	AbortedForQuota bool         `yaml:"aborted_for_quota"`
	Canceled        bool         `yaml:"canceled"`
	Items           []ItemResult `yaml:"items"`
}
