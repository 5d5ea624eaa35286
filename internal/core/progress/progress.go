package progress

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Status discriminates the messages a long-running job sends to its sink.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
	StatusComplete Status = "complete"
)

// Payload carries the incremental state of a running job.
type Payload struct {
	Percentage  float64 `json:"percentage"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// Message is one status update. Payload is set for success messages,
// Text for warnings and the terminal error/complete messages.
type Message struct {
	Status  Status   `json:"status"`
	Payload *Payload `json:"payload,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Terminal reports whether no further messages may follow this one.
func (m Message) Terminal() bool {
	return m.Status == StatusError || m.Status == StatusComplete
}

// Sink receives status messages from a job. Send must not block the job;
// implementations queue or drop rather than stall the producer.
type Sink interface {
	Send(Message)
}

// Reporter wraps a sink and enforces the protocol contract: percentages are
// monotonic across the whole job, and nothing is sent after a terminal
// message.
type Reporter struct {
	mu      sync.Mutex
	sink    Sink
	highest float64
	done    bool
}

// NewReporter creates a reporter forwarding to sink. A nil sink yields a
// reporter that only logs.
func NewReporter(sink Sink) *Reporter {
	return &Reporter{sink: sink}
}

func (r *Reporter) send(m Message) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		log.Debugf("progress message after terminal status dropped: %s", m.Status)
		return
	}
	if m.Terminal() {
		r.done = true
	}
	r.mu.Unlock()
	if r.sink != nil {
		r.sink.Send(m)
	}
}

// Report sends a success message. A percentage lower than an earlier one is
// raised to keep the reported sequence non-decreasing.
func (r *Reporter) Report(percentage float64, title, description string) {
	r.mu.Lock()
	if percentage < r.highest {
		percentage = r.highest
	}
	if percentage > 100 {
		percentage = 100
	}
	r.highest = percentage
	r.mu.Unlock()

	r.send(Message{
		Status:  StatusSuccess,
		Payload: &Payload{Percentage: percentage, Title: title, Description: description},
	})
}

// Warn sends a non-fatal warning.
func (r *Reporter) Warn(text string) {
	log.Warn(text)
	r.send(Message{Status: StatusWarning, Text: text})
}

// Fail sends the terminal error message.
func (r *Reporter) Fail(text string) {
	log.Error(text)
	r.send(Message{Status: StatusError, Text: text})
}

// Complete sends the terminal completion message.
func (r *Reporter) Complete(text string) {
	r.send(Message{Status: StatusComplete, Text: text})
}

// Done reports whether a terminal message has been sent.
func (r *Reporter) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Collector is a sink that records every message it receives. Used by the
// job registry and by tests.
type Collector struct {
	mu       sync.Mutex
	messages []Message
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Send records the message.
func (c *Collector) Send(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

// Messages returns a copy of all recorded messages in receive order.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Warnings returns the texts of all recorded warning messages.
func (c *Collector) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.messages {
		if m.Status == StatusWarning {
			out = append(out, m.Text)
		}
	}
	return out
}

// Fanout forwards every message to each of its sinks in order.
type Fanout []Sink

// Send forwards m to all sinks.
func (f Fanout) Send(m Message) {
	for _, s := range f {
		s.Send(m)
	}
}
