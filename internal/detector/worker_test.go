package detector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/andresmejia3/veil/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser.
// This lets in-memory buffers stand in for the worker's pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func frameOf(w, h int) types.Frame {
	return types.NewFrame(1, w, h, make([]byte, w*h*types.BytesPerPixel), nil)
}

// respond queues one length-prefixed response on the data pipe.
func respond(pipe *MockCloser, payload []byte) {
	binary.Write(pipe, binary.BigEndian, uint32(len(payload)))
	pipe.Write(payload)
}

func TestWorkerDetect(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	// Protocol: [Status:0] [Count] Count x [Box]
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(2))
	binary.Write(payload, binary.BigEndian, [4]int32{10, 10, 20, 20})
	binary.Write(payload, binary.BigEndian, [4]int32{30, 5, 8, 8})
	respond(dataPipeMock, payload.Bytes())

	// Cmd is nil because only the protocol is under test.
	w := &Worker{Stdin: stdinMock, DataPipe: dataPipeMock}

	frame := frameOf(4, 2)
	boxes, err := w.Detect(frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	sent := stdinMock.Bytes()
	pixLen := 4 * 2 * types.BytesPerPixel
	if len(sent) != 12+pixLen {
		t.Fatalf("Expected %d bytes sent, got %d", 12+pixLen, len(sent))
	}
	if got := binary.BigEndian.Uint32(sent[0:4]); got != uint32(8+pixLen) {
		t.Errorf("Expected length header %d, got %d", 8+pixLen, got)
	}
	if binary.BigEndian.Uint32(sent[4:8]) != 4 || binary.BigEndian.Uint32(sent[8:12]) != 2 {
		t.Errorf("Expected dimensions 4x2 in header, got %v", sent[4:12])
	}

	// The frame is only 4x2, so both boxes get clipped and the second is outside.
	if len(boxes) != 0 {
		t.Errorf("Expected boxes outside a 4x2 frame to be dropped, got %v", boxes)
	}
}

func TestWorkerDetect_Boxes(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(3))
	binary.Write(payload, binary.BigEndian, [4]int32{10, 10, 20, 20})
	binary.Write(payload, binary.BigEndian, [4]int32{90, 90, 20, 20})
	binary.Write(payload, binary.BigEndian, [4]int32{0, 0, 5, 5})
	respond(dataPipeMock, payload.Bytes())

	w := &Worker{Stdin: stdinMock, DataPipe: dataPipeMock, maxResults: 2}
	boxes, err := w.Detect(frameOf(100, 100))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("Expected 2 boxes after max-results, got %d", len(boxes))
	}
	if boxes[0] != (types.FaceBox{X: 10, Y: 10, Width: 20, Height: 20}) {
		t.Errorf("Unexpected first box %+v", boxes[0])
	}
	if boxes[1] != (types.FaceBox{X: 90, Y: 90, Width: 10, Height: 10}) {
		t.Errorf("Expected second box clipped to frame, got %+v", boxes[1])
	}
}

func TestWorkerDetect_Error(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1)
	errMsg := "Python Exception: Import Error"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)
	respond(dataPipeMock, payload.Bytes())

	w := &Worker{Stdin: stdinMock, DataPipe: dataPipeMock}
	_, err := w.Detect(frameOf(2, 2))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "worker error: "+errMsg, err)
	}
}

func TestWorkerDetect_UnusableFrame(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	w := &Worker{Stdin: stdinMock, DataPipe: &MockCloser{Buffer: new(bytes.Buffer)}}

	short := types.NewFrame(7, 10, 10, make([]byte, 12), nil)
	if _, err := w.Detect(short); err == nil {
		t.Fatal("Expected error for short pixel buffer")
	}
	if stdinMock.Len() != 0 {
		t.Errorf("Nothing should be written for an unusable frame, got %d bytes", stdinMock.Len())
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"empty", nil, "empty worker response"},
		{"unknown status", []byte{7}, "unknown worker status"},
		{"count overflow", []byte{0, 0, 0, 0, 5}, "reported 5 faces"},
		{"short error", []byte{1, 0, 0, 0, 9, 'x'}, "malformed worker error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse(tt.payload)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestWorkerDetect_OversizedResponse(t *testing.T) {
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(dataPipeMock, binary.BigEndian, uint32(maxResponse+1))

	w := &Worker{Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: dataPipeMock}
	if _, err := w.Detect(frameOf(1, 1)); err == nil {
		t.Fatal("Expected error for oversized response")
	}
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("does-not-exist", Config{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
}

func TestNew_FactoryFailure(t *testing.T) {
	_, err := New("python", Config{Script: "/nonexistent/worker.py"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable for missing script, got %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register("python", nil)
}

func TestBackends_IncludesPython(t *testing.T) {
	found := false
	for _, name := range Backends() {
		if name == "python" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected python backend to be registered, got %v", Backends())
	}
}

func TestLimit(t *testing.T) {
	boxes := []types.FaceBox{
		{X: -10, Y: -10, Width: 30, Height: 30},
		{X: 200, Y: 200, Width: 10, Height: 10},
		{X: 50, Y: 50, Width: 0, Height: 10},
		{X: 90, Y: 10, Width: 40, Height: 40},
	}
	got := Limit(boxes, 100, 100, 0)
	want := []types.FaceBox{
		{X: 0, Y: 0, Width: 20, Height: 20},
		{X: 90, Y: 10, Width: 10, Height: 40},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d boxes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("box %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
