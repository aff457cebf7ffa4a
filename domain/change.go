package domain

// ChangeOp names the write that produced a change event.
type ChangeOp string

const (
	ChangePutWeek    ChangeOp = "put-week"
	ChangeAppendTask ChangeOp = "append-task"
	ChangeUpdateTask ChangeOp = "update-task"
	ChangeDeleteTask ChangeOp = "delete-task"
	ChangeClearWeek  ChangeOp = "clear-week"
)

// ChangeEvent is published to the change feed after every successful write
// so downstream read models can refresh the affected week.
type ChangeEvent struct {
	UserID    string   `json:"userId"`
	WeekKey   string   `json:"weekKey"`
	Op        ChangeOp `json:"op"`
	Timestamp int64    `json:"timestamp"`
}
