package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chloeruka/jcontainers/collections"
	"github.com/fxamacker/cbor/v2"
)

// SnapshotMagic identifies an encoded store snapshot.
var SnapshotMagic = [4]byte{'J', 'C', 'S', 'V'}

// FormatVersion is the current envelope version.
const FormatVersion uint32 = 1

// magic(4) + version(4)
const headerSize = 8

var (
	ErrBadMagic           = errors.New("invalid magic number: expected JCSV")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrTruncated          = errors.New("snapshot data truncated")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("persist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// MarshalSnapshot serializes snap behind a magic/version header. The CBOR
// body is canonical, so equal snapshots encode to equal bytes.
func MarshalSnapshot(snap *collections.Snapshot) ([]byte, error) {
	body, err := cborEncMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("persist: marshal snapshot: %w", err)
	}
	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, SnapshotMagic[:])
	binary.LittleEndian.PutUint32(out[4:], FormatVersion)
	return append(out, body...), nil
}

// UnmarshalSnapshot parses data produced by MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*collections.Snapshot, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	if !bytes.Equal(data[:4], SnapshotMagic[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, data[:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:headerSize]); v != FormatVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrUnsupportedVersion, FormatVersion, v)
	}

	var snap collections.Snapshot
	if err := cbor.Unmarshal(data[headerSize:], &snap); err != nil {
		return nil, fmt.Errorf("persist: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// WriteSnapshot encodes snap to w.
func WriteSnapshot(w io.Writer, snap *collections.Snapshot) error {
	data, err := MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadSnapshot decodes one snapshot from the remainder of r.
func ReadSnapshot(r io.Reader) (*collections.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("persist: read snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// SaveFile snapshots s into path. The file is written next to its target
// and renamed into place, so a failed save leaves the previous file intact.
func SaveFile(path string, s *collections.Store) error {
	data, err := MarshalSnapshot(s.Snapshot())
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("persist: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: rename %s: %w", path, err)
	}
	log.Infof("saved %d bytes to %s", len(data), path)
	return nil
}

// LoadFile restores s from a file written by SaveFile. s must be empty.
func LoadFile(path string, s *collections.Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("persist: read %s: %w", path, err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return err
	}
	if err := s.Restore(snap); err != nil {
		return fmt.Errorf("persist: restore %s: %w", path, err)
	}
	return nil
}
