package spatialindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/beetlebugorg/shapestore/internal/shp"
)

// Side-car layout, all integers little-endian:
//
//	magic    [6]byte "SHPRTI"
//	version  uint8
//	flags    uint8   bit 0: zero-based record numbering
//	records  uint32  records in the .shp, null shapes included
//	entries  uint32
//	payload  zstd frame of entries × (4 float64 + int64 pointer)
const (
	sidecarVersion = 1
	flagZeroBased  = 1 << 0
	entrySize      = 5 * 8
	sidecarHeader  = 6 + 1 + 1 + 4 + 4
)

var sidecarMagic = [6]byte{'S', 'H', 'P', 'R', 'T', 'I'}

// ErrCorrupt indicates a side-car file that cannot be decoded.
var ErrCorrupt = errors.New("spatialindex: corrupt side-car file")

// SidecarPath returns the side-car path for a .shp path.
func SidecarPath(shpPath string) string {
	return strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".rti"
}

// Status tells whether a side-car file could be used.
type Status int

const (
	Loaded Status = iota
	NeedsRebuild
)

func (s Status) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "needs rebuild"
}

// LoadResult is the outcome of Load. Index is set only when Status is
// Loaded; Reason explains a NeedsRebuild.
type LoadResult struct {
	Status Status
	Reason string
	Index  *Index
}

func rebuild(reason string) LoadResult {
	return LoadResult{Status: NeedsRebuild, Reason: reason}
}

// Load reads the side-car at path. It is reused only when it exists, is
// well-formed and is not older than shpModTime.
func Load(path string, shpModTime time.Time) LoadResult {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return rebuild("no side-car file")
	}
	if err != nil {
		return rebuild(err.Error())
	}
	if info.ModTime().Before(shpModTime) {
		return rebuild("side-car older than shapefile")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rebuild(err.Error())
	}
	idx, err := Decode(data)
	if err != nil {
		return rebuild(err.Error())
	}
	return LoadResult{Status: Loaded, Index: idx}
}

// Encode serializes idx in side-car format.
func (idx *Index) Encode() ([]byte, error) {
	payload := make([]byte, 0, len(idx.entries)*entrySize)
	for _, e := range idx.entries {
		payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(e.Bound.Min[0]))
		payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(e.Bound.Min[1]))
		payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(e.Bound.Max[0]))
		payload = binary.LittleEndian.AppendUint64(payload, math.Float64bits(e.Bound.Max[1]))
		payload = binary.LittleEndian.AppendUint64(payload, uint64(e.Pointer))
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	var flags byte
	if idx.numbering == shp.ZeroBased {
		flags |= flagZeroBased
	}
	out := make([]byte, 0, sidecarHeader+len(payload)/2)
	out = append(out, sidecarMagic[:]...)
	out = append(out, sidecarVersion, flags)
	out = binary.LittleEndian.AppendUint32(out, uint32(idx.records))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(idx.entries)))
	return enc.EncodeAll(payload, out), nil
}

// Decode parses a side-car file and rebuilds the tree from its entries.
func Decode(data []byte) (*Index, error) {
	if len(data) < sidecarHeader || !bytes.Equal(data[:6], sidecarMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if data[6] != sidecarVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[6])
	}
	flags := data[7]
	records := int(binary.LittleEndian.Uint32(data[8:]))
	count := int(binary.LittleEndian.Uint32(data[12:]))

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(data[sidecarHeader:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(payload) != count*entrySize {
		return nil, fmt.Errorf("%w: %d payload bytes for %d entries", ErrCorrupt, len(payload), count)
	}

	entries := make([]Entry, count)
	for i := range entries {
		p := payload[i*entrySize:]
		f := func(k int) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(p[k*8:])) }
		entries[i] = Entry{
			Bound:   orb.Bound{Min: orb.Point{f(0), f(1)}, Max: orb.Point{f(2), f(3)}},
			Pointer: int64(binary.LittleEndian.Uint64(p[32:])),
		}
	}

	numbering := shp.OneBased
	if flags&flagZeroBased != 0 {
		numbering = shp.ZeroBased
	}
	return newIndex(entries, records, numbering), nil
}

// WriteFile persists idx to path, replacing any previous file atomically.
func (idx *Index) WriteFile(path string) error {
	data, err := idx.Encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// OpenOptions controls OpenOrBuild.
type OpenOptions struct {
	// Force ignores any existing side-car file.
	Force bool
	// Logger receives rebuild and persistence messages.
	Logger *zap.Logger
}

// OpenOrBuild returns the index for the shapefile read by r, loading the
// side-car at path when usable and otherwise scanning r and rewriting the
// side-car. Failure to write the side-car is logged, not returned, so
// read-only directories still work. rebuilt reports whether a scan ran.
func OpenOrBuild(path string, r *shp.Reader, opts OpenOptions) (idx *Index, rebuilt bool, err error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if !opts.Force {
		res := Load(path, r.Source().ModTime())
		if res.Status == Loaded {
			log.Debug("loaded spatial index", zap.String("path", path), zap.Int("entries", res.Index.Len()))
			r.AssumeNumbering(res.Index.Numbering())
			return res.Index, false, nil
		}
		log.Info("rebuilding spatial index", zap.String("path", path), zap.String("reason", res.Reason))
	}

	scan, err := r.ScanEnvelopes()
	if err != nil {
		return nil, true, fmt.Errorf("scan envelopes: %w", err)
	}
	idx = Build(scan)
	if err := idx.WriteFile(path); err != nil {
		log.Warn("could not persist spatial index", zap.String("path", path), zap.Error(err))
	}
	return idx, true, nil
}
