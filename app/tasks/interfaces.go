package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the internal API to manage background
// registration processing.
// Example usage:
//
//	scheduler := NewScheduler(journalConfigs, articleRepo, journalRepo, registrar)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRegisterDOITask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
