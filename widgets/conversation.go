package widgets

import (
	"context"
	"sync"

	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/services/conversation"
	"github.com/watsonkit/watsonkit/widget"
)

// Conversationalist answers one dialog turn.
type Conversationalist interface {
	Message(ctx context.Context, workspaceID string, req conversation.MessageRequest) (*conversation.MessageResponse, error)
}

// Conversation forwards text to a dialog workspace and emits the answer.
// The dialog context returned by each turn is sent with the next one.
type Conversation struct {
	*widget.Base
	*worker
	TextIn *widget.Input[*widget.TextData]
	Text   *widget.Output[*widget.TextData]

	client    Conversationalist
	workspace string

	// turns are serialized so each one sees the previous context.
	turn    sync.Mutex
	mu      sync.Mutex
	context conversation.Context
}

// NewConversation creates the widget.
func NewConversation(name string, client Conversationalist, workspaceID string, bus events.Bus, logger widget.Logger) *Conversation {
	w := &Conversation{client: client, workspace: workspaceID}
	w.TextIn = widget.NewInput("Text", w.onText)
	w.Text = widget.NewOutput[*widget.TextData]("Text")
	w.Base = widget.NewBase(name, logger).
		WithInputs(w.TextIn).
		WithOutputs(w.Text)
	w.worker = newWorker(name, conversation.ServiceName, bus, w.Logger())
	return w
}

// Context returns a copy of the current dialog context.
func (w *Conversation) Context() conversation.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(conversation.Context, len(w.context))
	for k, v := range w.context {
		out[k] = v
	}
	return out
}

// Reset starts a new conversation on the next turn.
func (w *Conversation) Reset() {
	w.mu.Lock()
	w.context = nil
	w.mu.Unlock()
}

func (w *Conversation) onText(d *widget.TextData) error {
	text := d.Text()
	w.call("message", func(ctx context.Context) error {
		w.turn.Lock()
		defer w.turn.Unlock()

		req := conversation.MessageRequest{Input: conversation.Input{Text: text}}
		w.mu.Lock()
		req.Context = w.context
		w.mu.Unlock()

		res, err := w.client.Message(ctx, w.workspace, req)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.context = res.Context
		w.mu.Unlock()

		w.Logger().Debug("conversation_turn",
			"widget", w.WidgetName(),
			"conversation_id", res.Context.ConversationID(),
			"intent", res.TopIntent(),
		)
		if answer := res.Text(); answer != "" {
			w.Text.SendData(widget.NewTextData(answer))
		}
		return nil
	})
	return nil
}

// Shutdown cancels pending turns.
func (w *Conversation) Shutdown(ctx context.Context) error { return w.stop(ctx) }
