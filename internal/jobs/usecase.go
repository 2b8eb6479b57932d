package jobs

import "context"

// UseCase is the contract for a class-based unit of schedulable business
// logic. Implementations are constructed by the injector right before each
// run; Do receives the decoded parameter payload and returns the result text
// delivered to the job's target chats.
type UseCase interface {
	Do(ctx context.Context, params map[string]any) (string, error)
}

// UserSchedulable is optionally implemented by use cases to declare whether
// end users may configure and schedule them. Use cases that do not implement
// it are treated as schedulable.
type UserSchedulable interface {
	Schedulable() bool
}
