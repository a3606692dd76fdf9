package server

import (
	"context"
	"sync"
	"time"

	"github.com/nedpals/davi-nfc-adapter/nfc"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is the pause between two detection rounds.
const DefaultPollInterval = 250 * time.Millisecond

// detectTimeout bounds a single TagPresent round.
const detectTimeout = 100 * time.Millisecond

// TagEvent is the payload broadcast for every newly detected tag.
type TagEvent struct {
	UID        string                 `json:"uid"`
	Technology string                 `json:"technology"`
	Text       string                 `json:"text"`
	Message    map[string]interface{} `json:"message,omitempty"`
	Err        *string                `json:"err"`
	ScannedAt  time.Time              `json:"scannedAt"`
}

func newTagEvent(tag *nfc.Tag, err error) TagEvent {
	ev := TagEvent{
		UID:        tag.UID(),
		Technology: tag.Technology().String(),
		ScannedAt:  time.Now(),
	}
	if msg := tag.NDEFMessage(); msg != nil {
		ev.Message = msg.ToJSONMap()
		if text, terr := msg.GetText(); terr == nil {
			ev.Text = text
		} else if uri, uerr := msg.GetURI(); uerr == nil {
			ev.Text = uri
		}
	}
	if err != nil {
		s := err.Error()
		ev.Err = &s
	}
	return ev
}

// ReaderStatus describes the reader for the status endpoint.
type ReaderStatus struct {
	TagPresent bool      `json:"tagPresent"`
	LastTag    *TagEvent `json:"lastTag,omitempty"`
	FieldOn    bool      `json:"fieldOn"`
	Polls      uint64    `json:"polls"`
}

// Reader owns the adapter on behalf of the server. The poll loop and the
// websocket handlers both go through it, so a write can never interleave
// with a detection round.
type Reader struct {
	mu      sync.Mutex
	adapter *nfc.Adapter
	log     logrus.FieldLogger

	interval time.Duration
	data     chan TagEvent

	present bool
	stale   bool
	current nfc.Identity
	lastTag *TagEvent
	fieldOn bool
	polls   uint64
}

// NewReader wraps adapter. The adapter must already have been started with
// Begin.
func NewReader(adapter *nfc.Adapter, logger logrus.FieldLogger, interval time.Duration) *Reader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Reader{
		adapter:  adapter,
		log:      logger,
		interval: interval,
		data:     make(chan TagEvent, 8),
		fieldOn:  true,
	}
}

// Data returns the channel new tags are delivered on.
func (r *Reader) Data() <-chan TagEvent {
	return r.data
}

// Run polls until ctx is done.
func (r *Reader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if ev, ok := r.Poll(ctx); ok {
			select {
			case r.data <- ev:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one detection round. It reports a tag only when it differs from
// the one seen in the previous round, or when the tag was taken away and
// presented again.
func (r *Reader) Poll(ctx context.Context) (TagEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.polls++
	if !r.adapter.TagPresentContext(ctx, detectTimeout) {
		if r.present {
			r.log.WithField("uid", r.current.UID()).Debug("tag removed")
		}
		r.present = false
		return TagEvent{}, false
	}

	id := r.adapter.Identity()
	if r.present && !r.stale && id.Equal(r.current) {
		return TagEvent{}, false
	}
	r.present = true
	r.stale = false
	r.current = id

	tag, err := r.adapter.Read()
	ev := newTagEvent(tag, err)
	r.lastTag = &ev
	r.log.WithFields(logrus.Fields{
		"uid":        ev.UID,
		"technology": ev.Technology,
	}).Info("tag detected")
	return ev, true
}

// requireTag fails with a no-tag error unless the last round saw a tag.
// The caller holds r.mu.
func (r *Reader) requireTag(op string) error {
	if !r.present {
		return nfc.NewNoTagError(op)
	}
	return nil
}

// modified forces the next poll to re-read and re-broadcast the tag.
func (r *Reader) modified() {
	r.stale = true
}

// Write stores msg on the tag in the field.
func (r *Reader) Write(msg *nfc.NDEFMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTag("Write"); err != nil {
		return err
	}
	if err := r.adapter.Write(msg); err != nil {
		return err
	}
	r.modified()
	return nil
}

// Erase leaves a single empty record on the tag.
func (r *Reader) Erase() error {
	return r.run("Erase", r.adapter.Erase)
}

// Format prepares a blank MIFARE Classic card for NDEF.
func (r *Reader) Format() error {
	return r.run("Format", r.adapter.Format)
}

// Clean restores the tag to its factory layout.
func (r *Reader) Clean() error {
	return r.run("Clean", r.adapter.Clean)
}

func (r *Reader) run(op string, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTag(op); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	r.modified()
	return nil
}

// SetField switches the RF field.
func (r *Reader) SetField(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if on {
		err = r.adapter.EnableRFField()
	} else {
		err = r.adapter.DisableRFField()
	}
	if err != nil {
		return err
	}
	r.fieldOn = on
	if !on {
		r.present = false
	}
	return nil
}

// Status returns a snapshot of the reader state.
func (r *Reader) Status() ReaderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := ReaderStatus{
		TagPresent: r.present,
		FieldOn:    r.fieldOn,
		Polls:      r.polls,
	}
	if r.lastTag != nil {
		ev := *r.lastTag
		st.LastTag = &ev
	}
	return st
}

// Close releases the adapter.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adapter.Close()
}
