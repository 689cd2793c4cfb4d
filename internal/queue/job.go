package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/local/minitools/internal/tools"
)

// InputRef points at an uploaded file kept in the artifact store.
type InputRef struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// Job is the queued form of a tool request.
type Job struct {
	ID        string        `json:"job_id"`
	Attempt   int           `json:"attempt"`
	Request   tools.Request `json:"request"`
	Inputs    []InputRef    `json:"inputs"`
	CreatedAt time.Time     `json:"created_at"`
}

func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// Decode parses a queue payload.
func Decode(b []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if j.ID == "" {
		return Job{}, fmt.Errorf("decode job: missing job_id")
	}
	if j.Attempt < 1 {
		j.Attempt = 1
	}
	return j, nil
}
