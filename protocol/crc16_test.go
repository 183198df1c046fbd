package protocol

import "testing"

func TestCRC16(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"empty", []byte{}, 0xFFFF},
		{"check string", []byte("123456789"), 0x6F91},
	}

	for _, tc := range testCases {
		result := CRC16(tc.data)
		if result != tc.expected {
			t.Errorf("%s: expected 0x%04X, got 0x%04X", tc.name, tc.expected, result)
		}
		t.Logf("%s: CRC16(%v) = 0x%04X", tc.name, tc.data, result)
	}
}

func TestCRC16DetectsSingleByteChange(t *testing.T) {
	data := []byte{5, MessageDest, 0x01, 0x02, 0x03}
	base := CRC16(data)
	for i := range data {
		changed := append([]byte(nil), data...)
		changed[i] ^= 0x01
		if CRC16(changed) == base {
			t.Errorf("flipping byte %d did not change the CRC", i)
		}
	}
}

func TestAppendTrailer(t *testing.T) {
	block := appendTrailer([]byte{5, MessageDest})
	if len(block) != 5 || block[4] != MessageValueSync {
		t.Fatalf("unexpected block %v", block)
	}
	crc := uint16(block[2])<<8 | uint16(block[3])
	if crc != CRC16(block[:2]) {
		t.Errorf("trailer CRC 0x%04X does not match 0x%04X", crc, CRC16(block[:2]))
	}
}
