package core

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"testing"

	"phasepwm/protocol"
)

// commandRig wires a controller to the global registry and captures
// everything the transport sends back
type commandRig struct {
	*simRig
	out *protocol.ScratchOutput
}

func newCommandRig(t *testing.T) *commandRig {
	t.Helper()
	r := startedRig(t)
	InitCoreCommands()
	InitPhasePWMCommands(r.ctrl)

	out := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(out, DispatchCommand))
	t.Cleanup(func() {
		SetGlobalTransport(nil)
		ResetFirmwareState()
		shutdownHooks = nil
	})
	return &commandRig{simRig: r, out: out}
}

func (c *commandRig) dispatch(t *testing.T, name string, args func(output protocol.OutputBuffer)) error {
	t.Helper()
	cmd, ok := GetGlobalRegistry().ByName(name)
	if !ok {
		t.Fatalf("command %s not registered", name)
	}
	scratch := protocol.NewScratchOutput()
	if args != nil {
		args(scratch)
	}
	data := append([]byte(nil), scratch.Result()...)
	return GetGlobalRegistry().Dispatch(cmd.ID, &data)
}

// responses splits the captured output into frame payloads
func (c *commandRig) responses(t *testing.T) [][]byte {
	t.Helper()
	raw := c.out.Result()
	var payloads [][]byte
	for len(raw) > 0 {
		n := int(raw[protocol.MessagePositionLen])
		if n < protocol.MessageLengthMin || n > len(raw) {
			t.Fatalf("malformed frame in output: %v", raw)
		}
		payloads = append(payloads, raw[protocol.MessageHeaderSize:n-protocol.MessageTrailerSize])
		raw = raw[n:]
	}
	c.out.Reset()
	return payloads
}

// decodeResponse checks the response ID and decodes its integer arguments
func decodeResponse(t *testing.T, payload *[]byte, name string, signed ...bool) []int64 {
	t.Helper()
	cmd, _ := GetGlobalRegistry().ByName(name)
	id, err := protocol.DecodeVLQUint(payload)
	if err != nil || uint16(id) != cmd.ID {
		t.Fatalf("expected %s (id %d), got id %d (%v)", name, cmd.ID, id, err)
	}
	var values []int64
	for _, s := range signed {
		if s {
			v, err := protocol.DecodeVLQInt(payload)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			values = append(values, int64(v))
		} else {
			v, err := protocol.DecodeVLQUint(payload)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			values = append(values, int64(v))
		}
	}
	return values
}

func setArgs(channel uint32, phase int32, duty uint32) func(output protocol.OutputBuffer) {
	return func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, channel)
		protocol.EncodeVLQInt(output, phase)
		protocol.EncodeVLQUint(output, duty)
	}
}

func TestSetAndGetPhasePWMCommands(t *testing.T) {
	c := newCommandRig(t)

	if err := c.dispatch(t, "set_phase_pwm", setArgs(2, -90000, 25000)); err != nil {
		t.Fatalf("set_phase_pwm failed: %v", err)
	}
	expectChannel(t, c.ctrl, 2, 270, 25)

	if err := c.dispatch(t, "get_phase_pwm", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 2)
	}); err != nil {
		t.Fatalf("get_phase_pwm failed: %v", err)
	}
	resp := c.responses(t)
	if len(resp) != 1 {
		t.Fatalf("expected one response, got %d", len(resp))
	}
	got := decodeResponse(t, &resp[0], "phase_pwm_state", false, true, false, false)
	if got[0] != 2 || got[1] != 270000 || got[2] != 25000 || got[3] != 0 {
		t.Errorf("unexpected phase_pwm_state: %v", got)
	}

	if err := c.dispatch(t, "set_phase_pwm", setArgs(10, 0, 50000)); err == nil {
		t.Errorf("expected an error for channel 10")
	}
}

func TestPhasePWMStatusCommand(t *testing.T) {
	c := newCommandRig(t)
	c.dispatch(t, "set_phase_pwm", setArgs(0, 0, 50000))
	c.dispatch(t, "set_phase_pwm_frequency", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 500)
	})
	c.responses(t)

	if err := c.dispatch(t, "get_phase_pwm_status", nil); err != nil {
		t.Fatalf("get_phase_pwm_status failed: %v", err)
	}
	resp := c.responses(t)
	got := decodeResponse(t, &resp[0], "phase_pwm_status", false, false, false, false, true, false, false)
	st := c.ctrl.Status()
	want := []int64{250000, 500, int64(st.Commands), int64(st.Publishes), int64(st.Active), boolInt(st.Pending), 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d: expected %d, got %d (%v)", i, want[i], got[i], got)
		}
	}
}

func TestRampAndStopCommands(t *testing.T) {
	c := newCommandRig(t)
	runTimersAt(0)

	err := c.dispatch(t, "ramp_phase_pwm", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 3)
		protocol.EncodeVLQInt(output, 120000)
		protocol.EncodeVLQUint(output, 40000)
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, 100)
	})
	if err != nil {
		t.Fatalf("ramp_phase_pwm failed: %v", err)
	}
	if !c.ctrl.Ramping(3) {
		t.Fatalf("ramp not started")
	}

	if err := c.dispatch(t, "stop_phase_pwm", nil); err != nil {
		t.Fatalf("stop_phase_pwm failed: %v", err)
	}
	if c.ctrl.Ramping(3) {
		t.Errorf("stop_phase_pwm left the ramp running")
	}
	expectChannel(t, c.ctrl, 3, 0, 0)

	err = c.dispatch(t, "ramp_phase_pwm", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 3)
		protocol.EncodeVLQInt(output, 0)
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, MaxRampMS+1)
		protocol.EncodeVLQUint(output, 0)
	})
	if err != ErrRampTooLong {
		t.Errorf("expected ErrRampTooLong, got %v", err)
	}
}

func TestShutdownDrivesOutputsLow(t *testing.T) {
	c := newCommandRig(t)
	c.dispatch(t, "set_phase_pwm", setArgs(1, 0, 100000))

	if err := c.dispatch(t, "emergency_stop", nil); err != nil {
		t.Fatalf("emergency_stop failed: %v", err)
	}
	if !IsShutdown() {
		t.Fatalf("firmware not shut down")
	}
	expectChannel(t, c.ctrl, 1, 0, 0)

	if err := c.dispatch(t, "set_phase_pwm", setArgs(1, 0, 100000)); err != ErrShutdown {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
	expectChannel(t, c.ctrl, 1, 0, 0)

	c.responses(t)
	c.dispatch(t, "get_config", nil)
	payload := c.responses(t)[0]
	got := decodeResponse(t, &payload, "config", false)
	if got[0] != 1 {
		t.Errorf("config reports is_shutdown=%d", got[0])
	}
	reason, err := protocol.DecodeVLQBytes(&payload)
	if err != nil || string(reason) != "emergency_stop" {
		t.Errorf("expected reason emergency_stop, got %q (%v)", reason, err)
	}
}

func TestIdentifyServesDictionary(t *testing.T) {
	c := newCommandRig(t)
	GetGlobalDictionary().BuildDictionary()

	var stream []byte
	for offset := uint32(0); ; {
		c.dispatch(t, "identify", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, offset)
			protocol.EncodeVLQUint(output, 40)
		})
		payload := c.responses(t)[0]
		got := decodeResponse(t, &payload, "identify_response", false)
		if got[0] != int64(offset) {
			t.Fatalf("expected offset %d, got %d", offset, got[0])
		}
		chunk, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			t.Fatalf("decode chunk failed: %v", err)
		}
		stream = append(stream, chunk...)
		offset += uint32(len(chunk))
		if len(chunk) < 40 {
			break
		}
	}

	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("identify did not serve a zlib stream: %v", err)
	}
	dict, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate failed: %v", err)
	}
	if !strings.HasPrefix(string(dict), `{"version":"phasepwm`) {
		t.Errorf("unexpected dictionary %q", dict)
	}
	if !strings.Contains(string(dict), `"PWM_CHANNELS":"10"`) {
		t.Errorf("dictionary lacks PWM_CHANNELS")
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
