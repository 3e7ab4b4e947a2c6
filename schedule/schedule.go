// Package schedule triggers repeated batch runs, either on a cron
// schedule or when the input directory changes.
package schedule

import "context"

// RunFunc performs one batch. It is never called concurrently with itself
// by the triggers in this package.
type RunFunc func(ctx context.Context)

// Trigger calls its RunFunc until ctx is done.
type Trigger interface {
	Run(ctx context.Context) error
}
