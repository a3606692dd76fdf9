package nfc

// ClassicCard is block-level access to a selected MIFARE Classic card.
//
// Blocks are addressed linearly (sector 1 block 0 is block 4). A sector must
// be authenticated through its trailer block before its blocks can be read
// or written; authenticating another sector drops the previous session.
type ClassicCard interface {
	Authenticate(block byte, key [6]byte, keyType int) error
	ReadBlock(block byte) ([16]byte, error)
	WriteBlock(block byte, data [16]byte) error
	Close() error
}

// UltralightCard is page-level access to a selected NFC Forum Type 2 card.
type UltralightCard interface {
	ReadPage(page byte) ([4]byte, error)
	WritePage(page byte, data [4]byte) error
	Close() error
}
