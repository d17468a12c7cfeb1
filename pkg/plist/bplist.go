package plist

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
	"unicode/utf16"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

const magic = "bplist00"

// epoch is 2001-01-01T00:00:00Z, the reference date bplist Date objects
// are measured from.
var epoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Marshal encodes root as a bplist00 document.
func Marshal(root *Value) ([]byte, error) {
	e := &encoder{
		uniquer: make(map[string]int),
	}
	e.collect(root)
	e.objectRefSize = refSizeFor(len(e.objects))

	var body bytes.Buffer
	offsets := make([]int, len(e.objects))
	for i, obj := range e.objects {
		offsets[i] = len(magic) + body.Len()
		e.writeObject(&body, obj)
	}

	offsetTableStart := body.Len()
	offsetSize := refSizeFor(offsetTableStart + 8)
	for _, off := range offsets {
		writeUintBE(&body, uint64(off), offsetSize)
	}

	var out bytes.Buffer
	out.WriteString(magic)
	out.Write(body.Bytes())

	var trailer [32]byte
	trailer[6] = byte(offsetSize)
	trailer[7] = byte(e.objectRefSize)
	binary.BigEndian.PutUint64(trailer[8:16], uint64(len(e.objects)))
	binary.BigEndian.PutUint64(trailer[16:24], uint64(e.topIndex))
	binary.BigEndian.PutUint64(trailer[24:32], uint64(len(magic)+offsetTableStart))
	out.Write(trailer[:])

	return out.Bytes(), nil
}

// encoder flattens the value tree depth-first (pre-order) into an object
// table, uniquing strings the way Apple's own CFBinaryPList writer does,
// so repeated dictionary keys cost one object instead of N.
type encoder struct {
	objects       []*Value
	uniquer       map[string]int
	objectRefSize int
	topIndex      int
}

func (e *encoder) collect(v *Value) int {
	if v.Kind == KindString {
		if idx, ok := e.uniquer[v.Str]; ok {
			return idx
		}
	}
	idx := len(e.objects)
	e.objects = append(e.objects, v)
	if v.Kind == KindString {
		e.uniquer[v.Str] = idx
	}

	switch v.Kind {
	case KindArray:
		refs := make([]int, len(v.Array))
		for i, item := range v.Array {
			refs[i] = e.collect(item)
		}
		v.refs = refs
	case KindDict:
		keyRefs := make([]int, v.Dict.Len())
		valRefs := make([]int, v.Dict.Len())
		for i, k := range v.Dict.Keys() {
			keyRefs[i] = e.collect(&Value{Kind: KindString, Str: k})
			val, _ := v.Dict.Get(k)
			valRefs[i] = e.collect(val)
		}
		v.keyRefs = keyRefs
		v.refs = valRefs
	}
	return idx
}

func (e *encoder) writeObject(w *bytes.Buffer, v *Value) {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			w.WriteByte(0x09)
		} else {
			w.WriteByte(0x08)
		}
	case KindInt:
		writeIntObject(w, v.Int)
	case KindReal:
		w.WriteByte(0x23)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Real))
		w.Write(b[:])
	case KindDate:
		w.WriteByte(0x33)
		var b [8]byte
		secs := v.Date.Sub(epoch).Seconds()
		binary.BigEndian.PutUint64(b[:], math.Float64bits(secs))
		w.Write(b[:])
	case KindData:
		writeLengthTagged(w, 0x4, len(v.Data))
		w.Write(v.Data)
	case KindString:
		if isASCII(v.Str) {
			writeLengthTagged(w, 0x5, len(v.Str))
			w.WriteString(v.Str)
		} else {
			u := utf16.Encode([]rune(v.Str))
			writeLengthTagged(w, 0x6, len(u))
			for _, r := range u {
				var b [2]byte
				binary.BigEndian.PutUint16(b[:], r)
				w.Write(b[:])
			}
		}
	case KindArray:
		writeLengthTagged(w, 0xA, len(v.refs))
		for _, ref := range v.refs {
			writeUintBE(w, uint64(ref), e.objectRefSize)
		}
	case KindDict:
		writeLengthTagged(w, 0xD, len(v.keyRefs))
		for _, ref := range v.keyRefs {
			writeUintBE(w, uint64(ref), e.objectRefSize)
		}
		for _, ref := range v.refs {
			writeUintBE(w, uint64(ref), e.objectRefSize)
		}
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

func writeLengthTagged(w *bytes.Buffer, tag byte, n int) {
	if n < 0x0f {
		w.WriteByte(tag<<4 | byte(n))
		return
	}
	w.WriteByte(tag<<4 | 0x0f)
	writeIntObject(w, int64(n))
}

func writeIntObject(w *bytes.Buffer, v int64) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		w.WriteByte(0x10)
		w.WriteByte(byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		w.WriteByte(0x11)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		w.Write(b[:])
	case v >= math.MinInt32 && v <= math.MaxInt32:
		w.WriteByte(0x12)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		w.Write(b[:])
	default:
		w.WriteByte(0x13)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		w.Write(b[:])
	}
}

func writeUintBE(w *bytes.Buffer, v uint64, size int) {
	b := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	w.Write(b)
}

func refSizeFor(count int) int {
	switch {
	case count <= 0xff:
		return 1
	case count <= 0xffff:
		return 2
	default:
		return 4
	}
}

// Unmarshal decodes a bplist00 document into its root Value.
func Unmarshal(data []byte) (*Value, error) {
	if len(data) < 40 || string(data[:8]) != magic {
		return nil, liberrors.ErrProtocol{Where: "plist", Err: errBadMagic}
	}
	trailer := data[len(data)-32:]
	offsetSize := int(trailer[6])
	objectRefSize := int(trailer[7])
	numObjects := int(binary.BigEndian.Uint64(trailer[8:16]))
	topIndex := int(binary.BigEndian.Uint64(trailer[16:24]))
	offsetTableOffset := int(binary.BigEndian.Uint64(trailer[24:32]))

	if offsetSize == 0 || objectRefSize == 0 || numObjects == 0 {
		return nil, liberrors.ErrProtocol{Where: "plist", Err: errBadTrailer}
	}

	offsets := make([]int, numObjects)
	for i := 0; i < numObjects; i++ {
		start := offsetTableOffset + i*offsetSize
		if start+offsetSize > len(data) {
			return nil, liberrors.ErrProtocol{Where: "plist", Err: errBadTrailer}
		}
		offsets[i] = int(readUintBE(data[start : start+offsetSize]))
	}

	d := &decoder{data: data, offsets: offsets, objectRefSize: objectRefSize}
	return d.readObject(topIndex)
}

var errBadMagic = plistError("not a bplist00 document")
var errBadTrailer = plistError("malformed bplist trailer")

type plistError string

func (e plistError) Error() string { return string(e) }

type decoder struct {
	data          []byte
	offsets       []int
	objectRefSize int
}

func (d *decoder) readObject(index int) (*Value, error) {
	if index < 0 || index >= len(d.offsets) {
		return nil, liberrors.ErrProtocol{Where: "plist", Err: plistError("object index out of range")}
	}
	off := d.offsets[index]
	if off >= len(d.data) {
		return nil, liberrors.ErrProtocol{Where: "plist", Err: plistError("object offset out of range")}
	}
	marker := d.data[off]
	tag := marker >> 4
	lowNibble := marker & 0x0f
	pos := off + 1

	switch tag {
	case 0x0:
		switch marker {
		case 0x08:
			return Bool(false), nil
		case 0x09:
			return Bool(true), nil
		}
		return &Value{Kind: KindBool}, nil
	case 0x1:
		n := 1 << lowNibble
		v := readSignedExtending(d.data[pos : pos+n])
		return Int(v), nil
	case 0x2:
		n := 1 << lowNibble
		if n == 4 {
			bits := binary.BigEndian.Uint32(d.data[pos : pos+4])
			return Real(float64(math.Float32frombits(bits))), nil
		}
		bits := binary.BigEndian.Uint64(d.data[pos : pos+8])
		return Real(math.Float64frombits(bits)), nil
	case 0x3:
		bits := binary.BigEndian.Uint64(d.data[pos : pos+8])
		secs := math.Float64frombits(bits)
		return DateVal(epoch.Add(time.Duration(secs * float64(time.Second)))), nil
	case 0x4:
		n, dataStart, err := d.readLength(lowNibble, pos)
		if err != nil {
			return nil, err
		}
		return DataVal(append([]byte(nil), d.data[dataStart:dataStart+n]...)), nil
	case 0x5:
		n, dataStart, err := d.readLength(lowNibble, pos)
		if err != nil {
			return nil, err
		}
		return String(string(d.data[dataStart : dataStart+n])), nil
	case 0x6:
		n, dataStart, err := d.readLength(lowNibble, pos)
		if err != nil {
			return nil, err
		}
		units := make([]uint16, n)
		for i := 0; i < n; i++ {
			units[i] = binary.BigEndian.Uint16(d.data[dataStart+i*2 : dataStart+i*2+2])
		}
		return String(string(utf16.Decode(units))), nil
	case 0xA:
		n, dataStart, err := d.readLength(lowNibble, pos)
		if err != nil {
			return nil, err
		}
		items := make([]*Value, n)
		for i := 0; i < n; i++ {
			ref := int(readUintBE(d.data[dataStart+i*d.objectRefSize : dataStart+(i+1)*d.objectRefSize]))
			item, err := d.readObject(ref)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return ArrayVal(items...), nil
	case 0xD:
		n, dataStart, err := d.readLength(lowNibble, pos)
		if err != nil {
			return nil, err
		}
		dict := NewDict()
		valOff := dataStart + n*d.objectRefSize
		for i := 0; i < n; i++ {
			keyRef := int(readUintBE(d.data[dataStart+i*d.objectRefSize : dataStart+(i+1)*d.objectRefSize]))
			valRef := int(readUintBE(d.data[valOff+i*d.objectRefSize : valOff+(i+1)*d.objectRefSize]))
			keyVal, err := d.readObject(keyRef)
			if err != nil {
				return nil, err
			}
			v, err := d.readObject(valRef)
			if err != nil {
				return nil, err
			}
			dict.Set(keyVal.Str, v)
		}
		return DictVal(dict), nil
	}
	return nil, liberrors.ErrProtocol{Where: "plist", Err: plistError("unknown object tag")}
}

// readLength handles the "0xf -> following int object" encoding for
// data/string/array/dict lengths.
func (d *decoder) readLength(lowNibble byte, pos int) (n int, dataStart int, err error) {
	if lowNibble != 0x0f {
		return int(lowNibble), pos, nil
	}
	marker := d.data[pos]
	sizeTag := marker & 0x0f
	count := 1 << sizeTag
	v := readSignedExtending(d.data[pos+1 : pos+1+count])
	return int(v), pos + 1 + count, nil
}

func readSignedExtending(b []byte) int64 {
	if len(b) == 8 {
		return int64(binary.BigEndian.Uint64(b))
	}
	var v int64
	for _, byt := range b {
		v = v<<8 | int64(byt)
	}
	// sign-extend for widths <= 4 bytes per spec.md 4.C
	bits := uint(len(b)) * 8
	if bits < 64 && v&(1<<(bits-1)) != 0 {
		v -= 1 << bits
	}
	return v
}

func readUintBE(b []byte) uint64 {
	var v uint64
	for _, byt := range b {
		v = v<<8 | uint64(byt)
	}
	return v
}
