package ngap

const (
	// MaxAMF is the number of AMF ids the temporary id can carry.
	MaxAMF = 1 << 10

	// DownlinkIDMask truncates temporary ids handed to terminals.
	DownlinkIDMask uint64 = 0xFFFFFFFFFF
)

// TemporaryID builds the AMF-issued identifier: set id in bits 30..39,
// pointer in bits 24..29, low 24 bits of the permanent id below.
func TemporaryID(amfID int, permanentID uint64) uint64 {
	a := uint64(amfID)
	return (a&0x3FF)<<30 | (a&0x3F)<<24 | (permanentID & 0xFFFFFF)
}

// OwnerAMF decodes the AMF that issued tmp.
func OwnerAMF(tmp uint64) int {
	return int((tmp >> 30) & 0x3FF)
}
