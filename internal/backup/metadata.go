package backup

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
)

// MetadataFilename is the envelope's filename inside a package's backup
// directory.
const MetadataFilename = "metadata.cbor"

// BackupMetadata is the envelope persisted alongside a backup archive,
// describing what the backup contains. Written exactly once per create,
// read exactly once per restore.
//
// TorKeys is retained for reading envelopes produced by older releases;
// both maps are populated on write, but NetworkKeys is the only
// authoritative source going forward.
type BackupMetadata struct {
	Timestamp      time.Time                     `cbor:"timestamp"`
	NetworkKeys    map[models.InterfaceID][]byte `cbor:"network-keys"`
	TorKeys        map[models.InterfaceID][]byte `cbor:"tor-keys"`
	MarketplaceURL *string                       `cbor:"marketplace-url"`
}

const (
	networkKeyLen = 32
	torKeyLen     = 64
)

// encMode keeps sub-second timestamp precision; the default unix-seconds
// encoding truncates.
var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeMetadata serializes the envelope to its compact binary form.
func EncodeMetadata(m *BackupMetadata) ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, errs.Wrapf(errs.KindSerialization, err, "encode backup metadata")
	}
	return data, nil
}

// DecodeMetadata parses an envelope. Absent optional fields decode to
// their defaults (empty key maps, nil marketplace url); structurally
// broken input is rejected rather than defaulted.
func DecodeMetadata(data []byte) (*BackupMetadata, error) {
	var m BackupMetadata
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrapf(errs.KindSerialization, err, "decode backup metadata")
	}
	if m.Timestamp.IsZero() {
		return nil, errs.New(errs.KindSerialization, "backup metadata missing timestamp")
	}
	for iface, key := range m.NetworkKeys {
		if len(key) != networkKeyLen {
			return nil, errs.New(errs.KindSerialization, "network key for %s is %d bytes, want %d", iface, len(key), networkKeyLen)
		}
	}
	for iface, key := range m.TorKeys {
		if len(key) != torKeyLen {
			return nil, errs.New(errs.KindSerialization, "tor key for %s is %d bytes, want %d", iface, len(key), torKeyLen)
		}
	}
	if m.NetworkKeys == nil {
		m.NetworkKeys = map[models.InterfaceID][]byte{}
	}
	if m.TorKeys == nil {
		m.TorKeys = map[models.InterfaceID][]byte{}
	}
	return &m, nil
}
