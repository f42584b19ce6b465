package models

// ItemStatus is the per-item publication state. Items move forward while a
// run is healthy; an interrupted in-flight item may be returned to pending so
// the next run retries it.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusUploading ItemStatus = "uploading"
	StatusUploaded  ItemStatus = "uploaded"
	StatusArchiving ItemStatus = "archiving"
	StatusCompleted ItemStatus = "completed"
	StatusError     ItemStatus = "error"
)

// UploadItem is one piece of content to publish.
type UploadItem struct {
	ID          string
	BatchID     string
	ContentHash string
	Status      ItemStatus
	RemoteID    string
	LastError   string
	Position    int
}

// ProgressCounts summarizes a batch's item statuses for reconciliation and
// the status display.
type ProgressCounts struct {
	Pending   int
	Uploading int
	Uploaded  int
	Archiving int
	Completed int
	Errored   int
}

// Total returns the number of items in the batch.
func (p ProgressCounts) Total() int {
	return p.Pending + p.Uploading + p.Uploaded + p.Archiving + p.Completed + p.Errored
}

// Started reports whether any item has moved beyond pending.
func (p ProgressCounts) Started() bool {
	return p.Uploading+p.Uploaded+p.Archiving+p.Completed+p.Errored > 0
}

// AllDone reports whether every item reached completed (errored items count
// as done for batch-termination purposes: they are recorded and skipped).
func (p ProgressCounts) AllDone() bool {
	return p.Pending == 0 && p.Uploading == 0 && p.Uploaded == 0 && p.Archiving == 0
}
