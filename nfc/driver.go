package nfc

// Driver performs NDEF-level operations against one tag technology.
//
// Drivers are constructed for a single operation and may use the scratch
// buffer they were built with as working memory for that operation only.
type Driver interface {
	Read(id Identity) (*Tag, error)
	Write(msg *NDEFMessage, id Identity) error
	Format(id Identity) error
	Clean(id Identity) error
}

// DriverFactory builds a driver over the chip handle and the adapter's
// scratch buffer.
type DriverFactory func(chip Chip, scratch []byte) Driver

func defaultDrivers() map[Technology]DriverFactory {
	return map[Technology]DriverFactory{
		TechnologyMifareClassic: NewClassicDriver,
		TechnologyType2:         NewUltralightDriver,
	}
}

// noDriver is used for identities no driver is registered for. Read still
// yields the identity; everything else fails.
type noDriver struct{}

func (noDriver) Read(id Identity) (*Tag, error) {
	return NewTag(id, TechnologyUnknown), nil
}

func (noDriver) Write(*NDEFMessage, Identity) error {
	return NewNotSupportedError("Write")
}

func (noDriver) Format(Identity) error {
	return NewNotSupportedError("Format")
}

func (noDriver) Clean(Identity) error {
	return NewNotSupportedError("Clean")
}
