package catalog

// DeviceRecord is one holding row parsed from a catalog page.
type DeviceRecord struct {
	ID    string `json:"id"`
	Site  string `json:"site"`
	State string `json:"state"`
}

// Level is the overall health of a status read.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

const (
	MessageSuccess = "data read succeeded."
	MessagePartial = "partial data read failure"
	MessageFailure = "data read failure"
)

// Outcome is what a single device query produced. It is kept for logs and tests only.
type Outcome struct {
	DeviceID string
	Records  int
	Err      error
}

// AggregateResult is the consolidated report for one status request.
type AggregateResult struct {
	Records  []DeviceRecord
	Level    Level
	Message  string
	Outcomes []Outcome
}

// Failed returns the outcomes that yielded no records.
func (r AggregateResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Records == 0 {
			failed = append(failed, o)
		}
	}
	return failed
}

// StatusMessage is the "msg" object of the status payload.
type StatusMessage struct {
	Level   Level  `json:"level"`
	Content string `json:"content"`
}

// StatusPayload is the JSON document served to the front end.
type StatusPayload struct {
	Data []DeviceRecord `json:"data"`
	Msg  StatusMessage  `json:"msg"`
}

// Payload converts the result into its wire shape. Data is never nil.
func (r AggregateResult) Payload() StatusPayload {
	data := r.Records
	if data == nil {
		data = []DeviceRecord{}
	}
	return StatusPayload{
		Data: data,
		Msg:  StatusMessage{Level: r.Level, Content: r.Message},
	}
}
