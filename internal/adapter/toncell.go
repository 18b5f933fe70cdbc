package adapter

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// tonCell is an ordinary TON cell under construction. Capacity is the
// protocol maximum of 1023 data bits and 4 references.
type tonCell struct {
	data   [128]byte
	bitLen int
	refs   []*tonCell
}

func (c *tonCell) writeBit(b uint64) {
	if b&1 != 0 {
		c.data[c.bitLen/8] |= 0x80 >> (c.bitLen % 8)
	}
	c.bitLen++
}

func (c *tonCell) writeUint(v uint64, bits int) {
	for i := bits - 1; i >= 0; i-- {
		c.writeBit(v >> i)
	}
}

func (c *tonCell) writeBytes(p []byte) {
	for _, b := range p {
		c.writeUint(uint64(b), 8)
	}
}

// writeGrams encodes a coin amount as a 4-bit byte length and that many
// big-endian bytes.
func (c *tonCell) writeGrams(v uint64) {
	if v == 0 {
		c.writeUint(0, 4)
		return
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	n := 8
	for n > 1 && buf[8-n] == 0 {
		n--
	}
	c.writeUint(uint64(n), 4)
	c.writeBytes(buf[8-n:])
}

// writeStdAddress encodes addr_std with no anycast.
func (c *tonCell) writeStdAddress(workchain int8, hash [32]byte) {
	c.writeUint(0b100, 3)
	c.writeUint(uint64(uint8(workchain)), 8)
	c.writeBytes(hash[:])
}

func (c *tonCell) addRef(ref *tonCell) {
	c.refs = append(c.refs, ref)
}

// dataBytes returns the cell payload with the completion tag applied to a
// partial final byte.
func (c *tonCell) dataBytes() []byte {
	n := (c.bitLen + 7) / 8
	out := make([]byte, n)
	copy(out, c.data[:n])
	if c.bitLen%8 != 0 {
		out[n-1] |= 0x80 >> (c.bitLen % 8)
	}
	return out
}

func (c *tonCell) descriptors() (byte, byte) {
	d1 := byte(len(c.refs))
	d2 := byte(c.bitLen/8 + (c.bitLen+7)/8)
	return d1, d2
}

func (c *tonCell) depth() int {
	depth := 0
	for _, ref := range c.refs {
		if d := ref.depth() + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// hash computes the standard cell representation hash.
func (c *tonCell) hash() [32]byte {
	d1, d2 := c.descriptors()
	h := sha256.New()
	h.Write([]byte{d1, d2})
	h.Write(c.dataBytes())
	for _, ref := range c.refs {
		var depth [2]byte
		binary.BigEndian.PutUint16(depth[:], uint16(ref.depth()))
		h.Write(depth[:])
	}
	for _, ref := range c.refs {
		refHash := ref.hash()
		h.Write(refHash[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

var tonBoCMagic = []byte{0xb5, 0xee, 0x9c, 0x72}

// serializeBoC packs a cell tree into a single-root bag of cells with a
// trailing CRC32-C checksum.
func serializeBoC(root *tonCell) ([]byte, error) {
	// Topological order, parents first, shared subtrees deduplicated.
	var cells []*tonCell
	index := map[[32]byte]int{}
	var visit func(c *tonCell) error
	visit = func(c *tonCell) error {
		if len(c.refs) > 4 || c.bitLen > 1023 {
			return fmt.Errorf("cell overflow: %d bits, %d refs", c.bitLen, len(c.refs))
		}
		h := c.hash()
		if _, ok := index[h]; ok {
			return nil
		}
		index[h] = len(cells)
		cells = append(cells, c)
		for _, ref := range c.refs {
			if err := visit(ref); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}
	if len(cells) > 255 {
		return nil, fmt.Errorf("too many cells: %d", len(cells))
	}

	var body []byte
	for _, c := range cells {
		d1, d2 := c.descriptors()
		body = append(body, d1, d2)
		body = append(body, c.dataBytes()...)
		for _, ref := range c.refs {
			body = append(body, byte(index[ref.hash()]))
		}
	}

	offsetSize := 1
	for len(body) >= 1<<(8*offsetSize) {
		offsetSize++
	}

	out := append([]byte(nil), tonBoCMagic...)
	out = append(out, 0x40|0x01) // crc32c present, one-byte cell refs
	out = append(out, byte(offsetSize))
	out = append(out, byte(len(cells)), 1, 0) // cell count, roots, absent
	for i := offsetSize - 1; i >= 0; i-- {
		out = append(out, byte(len(body)>>(8*i)))
	}
	out = append(out, 0) // root index
	out = append(out, body...)

	checksum := crc32.Checksum(out, crc32.MakeTable(crc32.Castagnoli))
	var crc [4]byte
	binary.LittleEndian.PutUint32(crc[:], checksum)
	return append(out, crc[:]...), nil
}

// crc16XModem is the checksum used in user-friendly TON addresses.
func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
