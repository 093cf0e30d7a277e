package speechtotext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/watsonkit/watsonkit/services/rest"
	"github.com/watsonkit/watsonkit/widget"
)

// ErrListenerClosed is returned when writing to a finished session.
var ErrListenerClosed = errors.New("speechtotext: listener closed")

// Listener is a streaming recognition session. Audio goes in with
// SendAudio; results arrive on Results until the session ends.
//
//	l, _ := client.Listen(ctx, speechtotext.RecognizeOptions{InterimResults: true})
//	go func() { for r := range l.Results() { ... } }()
//	l.SendAudio(pcm)
//	l.Stop()
type Listener struct {
	conn    *websocket.Conn
	results chan *Results
	logger  rest.Logger

	writeMu  sync.Mutex
	mu       sync.Mutex
	stopping bool
	closed   bool
	err      error
	done     chan struct{}
}

type startMessage struct {
	Action            string   `json:"action"`
	ContentType       string   `json:"content-type"`
	InterimResults    bool     `json:"interim_results"`
	MaxAlternatives   int      `json:"max_alternatives,omitempty"`
	WordConfidence    bool     `json:"word_confidence,omitempty"`
	Timestamps        bool     `json:"timestamps,omitempty"`
	SmartFormatting   bool     `json:"smart_formatting,omitempty"`
	InactivityTimeout int      `json:"inactivity_timeout,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	KeywordsThreshold float64  `json:"keywords_threshold,omitempty"`
}

type serverMessage struct {
	Results
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// Listen opens a streaming session. The session ends after Stop once the
// service has sent its final results, on a service error, on Close, or when
// ctx is done.
func (c *Client) Listen(ctx context.Context, opts RecognizeOptions) (*Listener, error) {
	conn, err := c.conn.Dial(ctx, "listen", "/v1/recognize", url.Values{"model": {opts.model()}})
	if err != nil {
		return nil, err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	start := startMessage{
		Action:            "start",
		ContentType:       contentType,
		InterimResults:    opts.InterimResults,
		MaxAlternatives:   opts.MaxAlternatives,
		WordConfidence:    opts.WordConfidence,
		Timestamps:        opts.Timestamps,
		SmartFormatting:   opts.SmartFormatting,
		InactivityTimeout: opts.InactivityTimeout,
		Keywords:          opts.Keywords,
		KeywordsThreshold: opts.KeywordsThreshold,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("speechtotext: send start: %w", err)
	}

	l := &Listener{
		conn:    conn,
		results: make(chan *Results, 16),
		logger:  c.logger,
		done:    make(chan struct{}),
	}
	widget.SafeGo(l.logger, "speechtotext listen", l.readLoop, func(r any) {
		l.finish(fmt.Errorf("speechtotext: reader panic: %v", r))
	})
	go func() {
		select {
		case <-ctx.Done():
			l.finish(ctx.Err())
		case <-l.done:
		}
	}()
	return l, nil
}

// Results delivers recognition results. It is closed when the session ends.
func (l *Listener) Results() <-chan *Results { return l.results }

// Done is closed when the session ends.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Err returns the reason the session ended; nil after a clean stop.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// SendAudio streams a block of audio in the session content type.
func (l *Listener) SendAudio(b []byte) error {
	return l.write(websocket.BinaryMessage, b)
}

// Stop tells the service the audio is complete. Remaining results are still
// delivered.
func (l *Listener) Stop() error {
	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()
	return l.write(websocket.TextMessage, []byte(`{"action":"stop"}`))
}

// Close ends the session immediately.
func (l *Listener) Close() error {
	l.finish(nil)
	return nil
}

func (l *Listener) write(messageType int, b []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrListenerClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(messageType, b)
}

func (l *Listener) readLoop() {
	defer close(l.results)
	listening := 0
	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			l.finish(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			l.logger.Warn("speechtotext_bad_message", "error", err.Error())
			continue
		}

		switch {
		case msg.Error != "":
			l.finish(rest.NewServiceError(ServiceName, "listen", 0, msg.Error))
			return
		case msg.State == "listening":
			listening++
			l.mu.Lock()
			stopping := l.stopping
			l.mu.Unlock()
			// The first "listening" acknowledges start; the next one after
			// Stop marks the end of the session.
			if stopping && listening > 1 {
				l.finish(nil)
				return
			}
		case len(msg.Results.Results) > 0:
			res := msg.Results
			select {
			case l.results <- &res:
			case <-l.done:
				return
			}
		}
	}
}

// finish records err and closes the connection once.
func (l *Listener) finish(err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.err = err
	l.mu.Unlock()

	l.writeMu.Lock()
	_ = l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.writeMu.Unlock()
	_ = l.conn.Close()
	close(l.done)

	if err != nil {
		l.logger.Warn("speechtotext_listen_ended", "error", err.Error())
	} else {
		l.logger.Debug("speechtotext_listen_ended")
	}
}
