// Package status holds the operator-facing state of one connection attempt:
// the latest status line, the pending prompt, and the operator's input.
//
// A Sink is not safe for concurrent use. It is owned by a single goroutine
// (see package window) and every mutation is marshaled onto it.
package status

import (
	"log/slog"

	"github.com/acolita/devremote/internal/prompt"
)

// Sink is the ConnectionStatus/PendingPrompt holder for one attempt.
type Sink struct {
	host   string
	status string

	prompt   *pendingPrompt
	promptID uint64

	input    string
	focusSeq uint64
	err      string

	classifier *prompt.Classifier
	logger     *slog.Logger
}

type pendingPrompt struct {
	message   string
	kind      prompt.Kind
	responder *prompt.Responder
}

// Option configures a Sink.
type Option func(*Sink)

// WithClassifier sets the classifier used to decide input masking.
func WithClassifier(c *prompt.Classifier) Option {
	return func(s *Sink) {
		s.classifier = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New creates a sink for host.
func New(host string, opts ...Option) *Sink {
	s := &Sink{
		host:       host,
		classifier: prompt.NewClassifier(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Host returns the host this sink reports on.
func (s *Sink) Host() string {
	return s.host
}

// SetPrompt makes message the pending prompt. A prior unanswered prompt is
// cancelled: its responder is dropped and its waiter observes abandonment.
func (s *Sink) SetPrompt(message string, responder *prompt.Responder) {
	if s.prompt != nil {
		s.logger.Warn("replacing unanswered prompt",
			"host", s.host,
			"previous", s.prompt.message,
			"next", message,
		)
		s.prompt.responder.Drop()
	}

	s.prompt = &pendingPrompt{
		message:   message,
		kind:      s.classifier.Classify(message),
		responder: responder,
	}
	s.promptID++
	s.status = ""
	s.input = ""
	s.focusSeq++
}

// SetStatus replaces the status line. An empty text clears it.
// A pending prompt is left alone.
func (s *Sink) SetStatus(text string) {
	s.status = text
}

// SetInput replaces the operator's input buffer.
func (s *Sink) SetInput(text string) {
	s.input = text
}

// SubmitCurrentReply answers the pending prompt with the input buffer and
// clears both. It reports false if no prompt was pending.
func (s *Sink) SubmitCurrentReply() bool {
	if s.prompt == nil {
		return false
	}

	p := s.prompt
	reply := s.input
	s.prompt = nil
	s.input = ""

	if !p.responder.Fulfill(reply) {
		s.logger.Debug("prompt answered after it was abandoned", "host", s.host)
	}
	return true
}

// SetError records the failure shown to the operator. It stays visible until
// the surface is dismissed or a new attempt begins.
func (s *Sink) SetError(err error) {
	if err == nil {
		s.err = ""
		return
	}
	s.err = err.Error()
}

// Dismiss drops any pending prompt without answering it.
func (s *Sink) Dismiss() {
	if s.prompt != nil {
		s.prompt.responder.Drop()
		s.prompt = nil
	}
	s.input = ""
}

// HasPrompt reports whether a prompt is pending.
func (s *Sink) HasPrompt() bool {
	return s.prompt != nil
}

// View returns a snapshot of the sink for rendering.
func (s *Sink) View() View {
	v := View{
		Host:     s.host,
		Status:   s.status,
		Input:    s.input,
		FocusSeq: s.focusSeq,
		Err:      s.err,
	}
	if s.prompt != nil {
		v.Prompt = s.prompt.message
		v.PromptID = s.promptID
		v.Kind = s.prompt.kind
		v.Masked = s.prompt.kind.Masked()
		v.Confirmation = s.prompt.kind == prompt.KindConfirmation
	}
	return v
}
