// Package bootstrap orchestrates a connection attempt: it opens the prompt
// window, drives the SSH handshake through a Delegate, and hands the
// finished session to the workspace layer.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/acolita/devremote/internal/prompt"
	"github.com/acolita/devremote/internal/release"
	"github.com/acolita/devremote/internal/resolver"
	"github.com/acolita/devremote/internal/security"
	"github.com/acolita/devremote/internal/status"
)

// Surface is the window-owned state the delegate reports to. Update runs fn
// on the owning goroutine.
type Surface interface {
	Update(fn func(*status.Sink)) error
}

// BinaryResolver produces the server binary for an attempt.
type BinaryResolver interface {
	Resolve(ctx context.Context, platform release.Platform, channel release.Channel, report resolver.StatusFunc) (release.Binary, error)
}

// Delegate answers the transport's callbacks for one attempt. Its methods
// are called from the handshake goroutine; every change to the operator's
// view is marshaled onto the surface.
type Delegate struct {
	surface    Surface
	resolver   BinaryResolver
	channel    release.Channel
	credential *security.Credential
	classifier *prompt.Classifier
	logger     *slog.Logger
}

// DelegateOption configures a Delegate.
type DelegateOption func(*Delegate)

// WithPromptClassifier sets the classifier that decides which prompts the
// supplied password may answer. It should be the one the surface uses.
func WithPromptClassifier(c *prompt.Classifier) DelegateOption {
	return func(d *Delegate) {
		if c != nil {
			d.classifier = c
		}
	}
}

// NewDelegate creates a delegate. credential, if non-nil, answers the first
// password prompt of the attempt.
func NewDelegate(surface Surface, r BinaryResolver, channel release.Channel, credential *security.Credential, logger *slog.Logger, opts ...DelegateOption) *Delegate {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Delegate{
		surface:    surface,
		resolver:   r,
		channel:    channel,
		credential: credential,
		classifier: prompt.NewClassifier(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AskPassword answers with the supplied password the first time a secret is
// asked for. Host key confirmations and every later prompt go to the
// operator. If the surface is gone the prompt is abandoned.
func (d *Delegate) AskPassword(ctx context.Context, text string) (string, error) {
	if d.classifier.Classify(text) != prompt.KindConfirmation {
		if password, ok := d.credential.Take(); ok {
			d.logger.Debug("answered prompt with supplied password")
			return password, nil
		}
	}

	waiter, responder := prompt.Issue(text)
	if err := d.surface.Update(func(s *status.Sink) {
		s.SetPrompt(text, responder)
	}); err != nil {
		responder.Drop()
		return "", prompt.ErrAbandoned
	}

	answer, err := waiter.Wait(ctx)
	if err != nil {
		d.logger.Debug("prompt not answered", "error", err)
		return "", err
	}
	return answer, nil
}

// SetStatus shows text on the surface. Updates to a removed surface are
// dropped.
func (d *Delegate) SetStatus(text string) {
	if err := d.surface.Update(func(s *status.Sink) {
		s.SetStatus(text)
	}); err != nil {
		d.logger.Debug("status dropped", "status", text, "error", err)
	}
}

// ResolveServerBinary resolves the server binary for platform on the
// attempt's release channel, reporting progress on the surface.
func (d *Delegate) ResolveServerBinary(ctx context.Context, platform release.Platform) (release.Binary, error) {
	binary, err := d.resolver.Resolve(ctx, platform, d.channel, d.SetStatus)
	d.SetStatus("")
	return binary, err
}

// RemoteServerBinaryPath returns the per-channel install path, relative to
// the remote home directory.
func (d *Delegate) RemoteServerBinaryPath() (string, error) {
	return RemoteServerBinaryPath(d.channel), nil
}

// RemoteServerBinaryPath returns the install path of the server binary for
// channel.
func RemoteServerBinaryPath(channel release.Channel) string {
	return ".local/devremote-server-" + channel.DevName()
}
