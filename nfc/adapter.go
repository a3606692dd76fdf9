// Package nfc is the adapter layer between an ISO14443A reader chip and the
// per-technology NDEF drivers.
//
// An Adapter polls the chip for a tag, classifies the captured identity and
// forwards read, write, erase, format and clean requests to the driver for
// that technology:
//
//	chip, _ := nfc.OpenLibNFC("")
//	adapter := nfc.NewAdapter(chip, make([]byte, nfc.DefaultScratchSize))
//	if err := adapter.Begin(true); err != nil {
//	    log.Fatal(err)
//	}
//	if adapter.TagPresent(nfc.NoTimeout) {
//	    tag, err := adapter.Read()
//	    ...
//	}
package nfc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Adapter dispatches NDEF operations for the tag found by the last
// successful TagPresent call.
//
// All methods are safe to call from several goroutines; they are serialized
// so the scratch buffer is only ever used by one driver at a time.
type Adapter struct {
	mu      sync.Mutex
	chip    Chip
	scratch []byte
	drivers map[Technology]DriverFactory
	log     logrus.FieldLogger

	target Target
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) AdapterOption {
	return func(a *Adapter) {
		a.log = l
	}
}

// WithDriver registers the driver used for a technology. A nil factory
// removes the technology, so its tags take the no-driver path.
func WithDriver(t Technology, factory DriverFactory) AdapterOption {
	return func(a *Adapter) {
		if factory == nil {
			delete(a.drivers, t)
			return
		}
		a.drivers[t] = factory
	}
}

// NewAdapter creates an adapter over chip. scratch is handed to every driver
// as working memory and stays owned by the caller; nil allocates
// DefaultScratchSize bytes.
func NewAdapter(chip Chip, scratch []byte, opts ...AdapterOption) *Adapter {
	if scratch == nil {
		scratch = make([]byte, DefaultScratchSize)
	}
	a := &Adapter{
		chip:    chip,
		scratch: scratch,
		drivers: defaultDrivers(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Begin starts the chip and checks that it answers. A chip that reports no
// firmware yields an error for which IsFatalError is true.
func (a *Adapter) Begin(verbose bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.chip.Begin(); err != nil {
		return NewTransportError("Begin", err)
	}
	version, err := a.chip.FirmwareVersion()
	if err != nil || version == 0 {
		a.log.Error("Didn't find PN53x board")
		return NewChipNotFoundError("Begin", err)
	}
	if verbose {
		a.log.Infof("Found chip %s", ParseFirmwareVersion(version))
	}
	if err := a.chip.SAMConfig(); err != nil {
		return NewTransportError("SAMConfig", err)
	}
	return nil
}

// TagPresent runs one detection round. NoTimeout uses the chip's own bound.
// On success the detected identity replaces the cached one; on failure the
// cached identity is cleared, so later operations see a zero-length UID.
func (a *Adapter) TagPresent(timeout time.Duration) bool {
	return a.TagPresentContext(context.Background(), timeout)
}

// TagPresentContext is TagPresent with a context that can cut the detection
// round short.
func (a *Adapter) TagPresentContext(ctx context.Context, timeout time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.target = Target{}
	target, err := a.chip.ReadPassiveTargetID(ctx, timeout)
	if err != nil || target.Identity.IsZero() {
		if err != nil {
			a.log.WithError(err).Debug("no tag detected")
		}
		return false
	}
	a.target = target

	byLength := Classify(target.Identity)
	if byTarget := ClassifyTarget(target.Identity, target.ATQA, target.SAK); byTarget != byLength {
		a.log.WithFields(logrus.Fields{
			"uid":  target.Identity.UID(),
			"atqa": target.ATQA,
			"sak":  target.SAK,
		}).Debugf("classified as %s, anticollision data suggests %s", byLength, byTarget)
	}
	return true
}

// Identity returns the identity captured by the last successful TagPresent.
func (a *Adapter) Identity() Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target.Identity
}

// Target returns the full anticollision data of the last detected tag.
func (a *Adapter) Target() Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Technology returns the classification of the cached identity.
func (a *Adapter) Technology() Technology {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Classify(a.target.Identity)
}

// driver builds the driver for the cached identity. ok is false when no
// driver is registered for its technology.
func (a *Adapter) driver() (Identity, Technology, Driver, bool) {
	id := a.target.Identity
	tech := Classify(id)
	factory, ok := a.drivers[tech]
	if !ok {
		return id, TechnologyUnknown, noDriver{}, false
	}
	return id, tech, factory(a.chip, a.scratch), true
}

func (a *Adapter) fields(op string, id Identity, tech Technology) logrus.Fields {
	return logrus.Fields{"op": op, "uid": id.UID(), "technology": tech.String()}
}

// Read returns the tag handle for the cached identity. The handle is never
// nil: when nothing can be decoded it carries the identity alone. err
// reports why a driver could not decode the tag.
func (a *Adapter) Read() (*Tag, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, tech, drv, ok := a.driver()
	if !ok {
		a.log.WithFields(a.fields("Read", id, tech)).Debug("no driver, returning identity only")
	}
	tag, err := drv.Read(id)
	if tag == nil {
		tag = NewTag(id, tech)
	}
	if err != nil {
		a.log.WithFields(a.fields("Read", id, tech)).WithError(err).Warn("read failed")
	}
	return tag, err
}

// Write stores msg on the tag.
func (a *Adapter) Write(msg *NDEFMessage) error {
	if msg == nil {
		return Errorf(ErrCodeInvalidData, "Write", "nil message")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.write("Write", msg)
}

func (a *Adapter) write(op string, msg *NDEFMessage) error {
	id, tech, drv, _ := a.driver()
	if err := drv.Write(msg, id); err != nil {
		a.log.WithFields(a.fields(op, id, tech)).WithError(err).Warn("write failed")
		return err
	}
	a.log.WithFields(a.fields(op, id, tech)).Debugf("wrote %d records", msg.RecordCount())
	return nil
}

// Erase writes a message holding a single empty record.
func (a *Adapter) Erase() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.write("Erase", NewNDEFMessage().AddEmptyRecord())
}

// Format prepares a blank MIFARE Classic card for NDEF. Identities of any
// other length are rejected before a driver is built.
func (a *Adapter) Format() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.target.Identity
	if id.Len() != 4 {
		a.log.WithField("uid", id.UID()).Warnf("format is only supported on MIFARE Classic (4 byte UID), got %d byte UID", id.Len())
		return Errorf(ErrCodeNotSupported, "Format", "unsupported identity length %d", id.Len())
	}
	id, tech, drv, _ := a.driver()
	if err := drv.Format(id); err != nil {
		a.log.WithFields(a.fields("Format", id, tech)).WithError(err).Warn("format failed")
		return err
	}
	return nil
}

// Clean restores the tag to its factory layout.
func (a *Adapter) Clean() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, tech, drv, _ := a.driver()
	if err := drv.Clean(id); err != nil {
		a.log.WithFields(a.fields("Clean", id, tech)).WithError(err).Warn("clean failed")
		return err
	}
	return nil
}

// EnableRFField switches the chip's RF field on.
func (a *Adapter) EnableRFField() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chip.SetRFField(0, true)
}

// DisableRFField switches the chip's RF field off.
func (a *Adapter) DisableRFField() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chip.SetRFField(0, false)
}

// Close releases the chip.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chip.Close()
}
