package lidar

import (
	"encoding/binary"

	"github.com/oht50/firmware/internal/timeutil"
)

// Wire-format constants for the rotating-laser binary stream
// (spec.md §6.1). Scan records are 5 bytes: two little-endian u16
// fields plus one quality byte. A two-byte marker precedes the first
// record of each revolution.
const (
	syncMarkerHi  byte = 0xA5
	syncMarkerLo  byte = 0x5A
	recordSize         = 5
	distanceScale      = 4   // raw units are 1/4 mm
	angleScale         = 64  // raw units are 1/64 degree

	cmdPrefix     byte = 0xA5
	cmdGetInfo    byte = 0x25
	cmdGetHealth  byte = 0x26
	cmdStartScan  byte = 0x20
	cmdStopScan   byte = 0x25
	cmdReset      byte = 0x40
)

// commandFrame builds a two-byte host->device command frame.
func commandFrame(cmd byte) []byte {
	return []byte{cmdPrefix, cmd}
}

// Assembler consumes the raw byte stream from a Transport and
// reconstructs angular Scans. It keeps a running scratch buffer and
// resynchronizes on the 0xA5 0x5A marker; partial buffers survive
// across Feed calls. Not safe for concurrent use — the facade's scan
// loop owns one Assembler.
type Assembler struct {
	clock timeutil.Clock

	carry []byte // bytes left over from the previous Feed, awaiting a full record

	scratch Scan // scan currently being assembled
}

// NewAssembler returns an Assembler that stamps completed scans with
// clock's current time.
func NewAssembler(clock timeutil.Clock) *Assembler {
	return &Assembler{
		clock:   clock,
		scratch: Scan{Points: make([]Point, 0, PointsPerScan)},
	}
}

// Feed appends newly read bytes to the assembler and advances parsing
// as far as possible. It returns a copy of the scratch scan; callers
// should check ScanComplete to know whether a full revolution just
// finished. Feed never blocks and never returns an error: malformed
// records are simply skipped as the parser resynchronizes on the next
// marker.
func (a *Assembler) Feed(data []byte) Scan {
	buf := append(a.carry, data...)
	a.carry = nil

	i := 0
	for {
		if a.scratch.ScanComplete {
			// A prior Feed call already completed a revolution but the
			// caller hasn't consumed it; keep accumulating bytes without
			// losing them, the facade drains ScanComplete promptly.
		}

		if i+1 < len(buf) && buf[i] == syncMarkerHi && buf[i+1] == syncMarkerLo {
			a.rotate()
			i += 2
			continue
		}

		if i+recordSize > len(buf) {
			break
		}

		rec := buf[i : i+recordSize]
		// A byte sequence that happens to start with 0xA5 but isn't
		// followed by 0x5A is just a record whose low distance byte is
		// 0xA5; only a true two-byte marker resyncs.
		a.parseRecord(rec)
		i += recordSize
	}

	a.carry = append(a.carry[:0], buf[i:]...)

	return a.scratch.Clone()
}

// rotate starts a new revolution: the scratch buffer is cleared and
// scan_complete is reset to false, per spec.md §4.B.
func (a *Assembler) rotate() {
	a.scratch = Scan{
		Points:       make([]Point, 0, PointsPerScan),
		ScanComplete: false,
	}
}

func (a *Assembler) parseRecord(rec []byte) {
	if a.scratch.PointCount() >= PointsPerScan {
		return
	}

	rawDistance := binary.LittleEndian.Uint16(rec[0:2])
	rawAngle := binary.LittleEndian.Uint16(rec[2:4])
	quality := rec[4]

	distanceMM := uint32(rawDistance) * distanceScale
	if distanceMM > MaxDistanceMM {
		distanceMM = MaxDistanceMM
	}
	angleDeg := uint16((uint32(rawAngle) / angleScale) % 360)

	p := Point{
		DistanceMM: uint16(distanceMM),
		AngleDeg:   angleDeg,
		Quality:    quality,
	}
	if !p.Valid() {
		return
	}

	p.TimestampUS = timeutil.NowMicro(a.clock)
	a.scratch.Points = append(a.scratch.Points, p)

	if !a.scratch.ScanComplete && a.scratch.PointCount() >= MinCompletePoints {
		a.scratch.ScanComplete = true
		a.scratch.ScanTimestampUS = p.TimestampUS
	}
}
