package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/validation"
)

func LoadRegistry(path string) (*JobRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg JobRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &reg, nil
}

// Validate checks the registry against the task types the service serves. Every
// problem found is returned, not just the first.
func Validate(reg *JobRegistry, served []string) []string {
	var problems []string
	seen := make(map[string]bool, len(reg.Jobs))

	for i, job := range reg.Jobs {
		name := job.TaskType
		if name == "" {
			problems = append(problems, fmt.Sprintf("job %d: taskType is required", i))
			name = fmt.Sprintf("#%d", i)
		} else if seen[name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate taskType", name))
		}
		seen[name] = true

		if len(job.InputSchema) == 0 {
			problems = append(problems, fmt.Sprintf("%s: inputSchema is required", name))
		} else if _, err := validation.Compile(name, string(job.InputSchema)); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
		if len(job.OutputSchema) > 0 {
			if _, err := validation.Compile(name+" output", string(job.OutputSchema)); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			}
		}
		if job.Timeout != "" {
			if _, err := time.ParseDuration(job.Timeout); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid timeout %q", name, job.Timeout))
			}
		}
		for _, code := range job.ErrorCodes {
			if !knownErrorCode(code) {
				problems = append(problems, fmt.Sprintf("%s: unknown error code %s", name, code))
			}
		}
	}

	for _, taskType := range served {
		if !seen[taskType] {
			problems = append(problems, fmt.Sprintf("%s: served but not registered", taskType))
		}
	}
	return problems
}

// Find returns the job registered under taskType.
func (r *JobRegistry) Find(taskType string) (*Job, bool) {
	for i := range r.Jobs {
		if r.Jobs[i].TaskType == taskType {
			return &r.Jobs[i], true
		}
	}
	return nil, false
}

// knownErrorCode reports whether code can be thrown to a process, either as a mapped
// BPMN code or as an unmapped internal code.
func knownErrorCode(code string) bool {
	if _, ok := apperrors.BPMNErrorMapping[apperrors.ErrorCode(code)]; ok {
		return true
	}
	for _, bpmn := range apperrors.BPMNErrorMapping {
		if bpmn == code {
			return true
		}
	}
	return apperrors.ErrorCode(code) == apperrors.ErrCodeInternal
}
