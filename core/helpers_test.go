package core

import (
	"strings"
	"testing"

	"rcadc/capture"
	"rcadc/protocol"
)

// response is one decoded frame sent through SendResponse.
type response struct {
	name  string
	args  []uint32
	bytes []byte
}

// withFreshRegistry gives a test its own registry, dictionary and firmware
// state.
func withFreshRegistry(t *testing.T) {
	oldReg, oldDict, oldState := globalRegistry, globalDictionary, globalState
	oldSource, oldBuf, oldSeq, oldLast := sampleSource, sampleBuf, sampleSeq, sampleLast
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	globalState = &FirmwareState{}
	sampleSource, sampleBuf, sampleSeq, sampleLast = nil, nil, 0, 0
	t.Cleanup(func() {
		globalRegistry, globalDictionary, globalState = oldReg, oldDict, oldState
		sampleSource, sampleBuf, sampleSeq, sampleLast = oldSource, oldBuf, oldSeq, oldLast
	})
}

// collectResponses runs fn with a transport installed and decodes every
// frame it sends, using the registry formats.
func collectResponses(t *testing.T, fn func()) []response {
	t.Helper()
	out := protocol.NewScratchOutput()
	var raw []byte
	tr := protocol.NewTransport(out, nil)
	tr.SetFlushCallback(func() {
		raw = append(raw, out.Result()...)
		out.Reset()
	})
	SetGlobalTransport(tr)
	defer SetGlobalTransport(nil)

	fn()
	tr.Flush()

	var resps []response
	for len(raw) > 0 {
		n := int(raw[0])
		if n < protocol.MessageLengthMin || n > len(raw) {
			t.Fatalf("bad frame length %d", n)
		}
		payload := raw[protocol.MessageHeaderSize : n-protocol.MessageTrailerSize]
		raw = raw[n:]

		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatal(err)
		}
		cmd, ok := globalRegistry.GetCommand(uint16(id))
		if !ok {
			t.Fatalf("frame for unknown id %d", id)
		}
		r := response{name: cmd.Name}
		for _, field := range strings.Fields(cmd.Format) {
			if strings.HasSuffix(field, "%*s") {
				r.bytes, err = protocol.DecodeVLQBytes(&payload)
			} else {
				var v uint32
				v, err = protocol.DecodeVLQUint(&payload)
				r.args = append(r.args, v)
			}
			if err != nil {
				t.Fatalf("%s: %v", cmd.Name, err)
			}
		}
		resps = append(resps, r)
	}
	return resps
}

// call dispatches a command by name with VLQ arguments.
func call(t *testing.T, name string, args ...uint32) {
	t.Helper()
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	out := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQUint(out, a)
	}
	data := append([]byte(nil), out.Result()...)
	if err := globalRegistry.Dispatch(cmd.ID, &data); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
}

type fakeSource struct {
	cfg   capture.Config
	cal   capture.Calibration
	stats capture.Stats
	err   error
}

func (f *fakeSource) Read(dst []byte) (int, error) {
	if len(dst) > f.cfg.MaxRead {
		return 0, capture.ErrRequestTooLarge
	}
	if f.err != nil {
		return 0, f.err
	}
	for i := range dst {
		dst[i] = byte(i % 129)
	}
	return len(dst), nil
}

func (f *fakeSource) Calibration() capture.Calibration { return f.cal }
func (f *fakeSource) Stats() capture.Stats             { return f.stats }
func (f *fakeSource) Config() capture.Config           { return f.cfg }
