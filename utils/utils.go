// Package utils contains small helpers shared by the bverify packages:
// bit access on trie keys, fixed-width integer encodings and file
// handling for the executables.
package utils

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// GetNthBit finds the bit in the byte array bs
// at offset offset, and determines whether it is 1 or 0.
// return true if the nth bit is 1, false otherwise.
// from MSB to LSB order
func GetNthBit(bs []byte, offset uint32) bool {
	arrayOffset := offset / 8
	bitOfByte := offset % 8

	masked := int(bs[arrayOffset] & (1 << uint(7-bitOfByte)))
	return masked != 0
}

// CommonPrefixBits returns the number of leading bits a and b share,
// up to the length of the shorter slice.
func CommonPrefixBits(a, b []byte) uint32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if x := a[i] ^ b[i]; x != 0 {
			bit := uint32(0)
			for x&0x80 == 0 {
				x <<= 1
				bit++
			}
			return uint32(i)*8 + bit
		}
	}
	return uint32(n) * 8
}

// ToBytes packs a list of bits into a byte array, MSB first.
func ToBytes(bits []bool) []byte {
	bs := make([]byte, (len(bits)+7)/8)
	for i := 0; i < len(bits); i++ {
		if bits[i] {
			bs[i/8] |= (1 << 7) >> uint(i%8)
		}
	}
	return bs
}

// ULongToBytes converts an uint64 variable to byte array
// in little endian format
func ULongToBytes(num uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, num)
	return buf
}

// ShortHex returns the first bytes of bs in hex, for log output.
func ShortHex(bs []byte) string {
	if len(bs) > 8 {
		bs = bs[:8]
	}
	return hex.EncodeToString(bs)
}

// WriteFile writes buf to a file whose path is indicated by filename.
func WriteFile(filename string, buf []byte, perm os.FileMode) error {
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("Can't write file. File '%s' already exists\n",
			filename)
	}

	if err := os.WriteFile(filename, buf, perm); err != nil {
		return err
	}
	return nil
}

// ResolvePath returns the absolute path of file.
// This will use other as a base path if file is just a file name.
func ResolvePath(file, other string) string {
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(other), file)
	}
	return file
}
