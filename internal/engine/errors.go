package engine

import (
	"errors"
	"fmt"

	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Stage is a step of a single resource sync.
type Stage string

const (
	StageIdle          Stage = "IDLE"
	StageFetching      Stage = "FETCHING"
	StageMapping       Stage = "MAPPING"
	StageWriting       Stage = "WRITING"
	StageCheckpointing Stage = "CHECKPOINTING"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)

// ErrRunInProgress is returned when a run is requested while another run of
// the same coordinator has not finished.
var ErrRunInProgress = errors.New("sync run already in progress")

// StageError reports the resource and stage a sync failed in. Err is the
// underlying failure, unchanged.
type StageError struct {
	Resource models.Resource
	Stage    Stage
	Table    string
	Err      error
}

func (e *StageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("sync %s failed while %s %s: %v", e.Resource, e.Stage, e.Table, e.Err)
	}
	return fmt.Sprintf("sync %s failed while %s: %v", e.Resource, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
