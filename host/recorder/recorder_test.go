package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestScale(t *testing.T) {
	testCases := []struct {
		in   byte
		want int
	}{
		{0, 0},
		{1, 1},
		{64, 127},
		{127, 253},
		{128, 255},
		{200, 255},
	}
	for _, tc := range testCases {
		if got := Scale(tc.in); got != tc.want {
			t.Errorf("Scale(%d) = %d, expected %d", tc.in, got, tc.want)
		}
	}
}

// header checks the canonical 44-byte PCM header and returns the data.
func header(t *testing.T, b []byte, rate uint32, samples int) []byte {
	t.Helper()
	if len(b) < 44 {
		t.Fatalf("wav stream only %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[36:40]) != "data" {
		t.Fatalf("bad chunk ids % x", b[:44])
	}
	le := binary.LittleEndian
	if ch := le.Uint16(b[22:]); ch != 2 {
		t.Errorf("channels %d", ch)
	}
	if r := le.Uint32(b[24:]); r != rate {
		t.Errorf("sample rate %d, expected %d", r, rate)
	}
	if bits := le.Uint16(b[34:]); bits != 8 {
		t.Errorf("bits per sample %d", bits)
	}
	if size := le.Uint32(b[40:]); size != uint32(2*samples) {
		t.Errorf("data size %d, expected %d", size, 2*samples)
	}
	return b[44:]
}

func TestEncode(t *testing.T) {
	r, err := New("unused.wav", 54253)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Write([]byte{0, 128, 64, 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Write([]byte{128, 0}); err != nil {
		t.Fatal(err)
	}
	if r.Samples() != 3 || r.Blocks() != 2 {
		t.Errorf("samples %d blocks %d", r.Samples(), r.Blocks())
	}

	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	data := header(t, buf.Bytes(), 54253, 3)
	want := []byte{0, 255, 127, 1, 255, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("data % x, expected % x", data, want)
	}
}

func TestWriteErrors(t *testing.T) {
	if _, err := New("x.wav", 0); !errors.Is(err, ErrSampleRate) {
		t.Errorf("zero rate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	r, err := New(path, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Write([]byte{1, 2, 3}); !errors.Is(err, ErrOddBlock) {
		t.Errorf("odd block: %v", err)
	}
	r.Drop()
	r.Drop()
	if r.Dropped() != 2 {
		t.Errorf("dropped %d", r.Dropped())
	}
	if err := r.Write([]byte{10, 20}); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Write([]byte{1, 2}); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data := header(t, b, 1000, 1)
	t.Logf("wrote %d bytes, data % x", len(b), data)
	if !bytes.Equal(data, []byte{19, 39}) {
		t.Errorf("data % x", data)
	}
}

func TestInspect(t *testing.T) {
	r, err := New("unused.wav", 8000)
	if err != nil {
		t.Fatal(err)
	}
	block := make([]byte, 0, 200)
	for i := 0; i < 100; i++ {
		block = append(block, 64, 128)
	}
	if err := r.Write(block); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	info, err := Inspect(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("%+v", info)
	if info.Channels != 2 || info.SampleRate != 8000 || info.BitDepth != 8 || info.Frames != 100 {
		t.Errorf("info %+v", info)
	}
	if len(info.Means) != 2 {
		t.Errorf("channel means %v", info.Means)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if _, err := Inspect(bytes.NewReader([]byte("definitely not a riff file"))); err == nil {
		t.Error("garbage accepted")
	}
}
