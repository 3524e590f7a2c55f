package api

// Event kinds pushed on the live stream.
const (
	EventCommand = "command"
	EventMotion  = "motion"
)

// StreamEvent is one message on /ws/stream.
type StreamEvent struct {
	Time int64       `json:"t"`
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}
