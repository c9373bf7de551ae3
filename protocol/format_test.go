package protocol

import (
	"bytes"
	"testing"
)

func TestParseMessageFormat(t *testing.T) {
	m, err := ParseMessageFormat(4, "ramp_phase_pwm channel=%c phase=%i duty=%u delay_ms=%u duration_ms=%u")
	if err != nil {
		t.Fatalf("ParseMessageFormat failed: %v", err)
	}
	if m.ID != 4 || m.Name != "ramp_phase_pwm" || len(m.Params) != 5 {
		t.Fatalf("Unexpected format: %+v", m)
	}
	if m.Params[1].Name != "phase" || m.Params[1].Type != ParamInt || m.Params[0].Type != ParamUint {
		t.Errorf("Unexpected params: %+v", m.Params)
	}

	bare, err := ParseMessageFormat(9, "stop_phase_pwm")
	if err != nil || bare.Name != "stop_phase_pwm" || len(bare.Params) != 0 {
		t.Errorf("Parameterless format parsed wrongly: %+v (%v)", bare, err)
	}

	for _, bad := range []string{"", "cmd x", "cmd =%u", "cmd x=%f"} {
		if _, err := ParseMessageFormat(0, bad); err != ErrBadFormat {
			t.Errorf("%q: expected ErrBadFormat, got %v", bad, err)
		}
	}
}

func TestMessageFormatRoundTrip(t *testing.T) {
	m, _ := ParseMessageFormat(12, "config is_shutdown=%c reason=%*s")
	out := NewScratchOutput()
	if err := m.Encode(out, true, "overcurrent"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	data := append([]byte(nil), out.Result()...)
	id, _ := DecodeVLQUint(&data)
	if id != 12 {
		t.Fatalf("Expected id 12, got %d", id)
	}
	values, err := m.Decode(&data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if values["is_shutdown"] != int64(1) || !bytes.Equal(values["reason"].([]byte), []byte("overcurrent")) {
		t.Errorf("Unexpected values: %v", values)
	}
	if len(data) != 0 {
		t.Errorf("%d bytes left over", len(data))
	}
}

func TestMessageFormatSignedAndLarge(t *testing.T) {
	m, _ := ParseMessageFormat(3, "phase_pwm_state channel=%c phase=%i duty=%u ramping=%c")
	out := NewScratchOutput()
	m.Encode(out, uint8(9), int32(-270000), uint32(3000000000), false)

	data := append([]byte(nil), out.Result()...)
	DecodeVLQUint(&data)
	values, err := m.Decode(&data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if values["phase"] != int64(-270000) || values["duty"] != int64(3000000000) || values["channel"] != int64(9) {
		t.Errorf("Unexpected values: %v", values)
	}
}

func TestMessageFormatEncodeErrors(t *testing.T) {
	m, _ := ParseMessageFormat(1, "identify offset=%u count=%c")
	if err := m.Encode(NewScratchOutput(), 1); err != ErrArgCount {
		t.Errorf("Expected ErrArgCount, got %v", err)
	}
	if err := m.Encode(NewScratchOutput(), 1, 2.5); err != ErrArgType {
		t.Errorf("Expected ErrArgType, got %v", err)
	}
	if got := m.String(); got != "identify offset=%u count=%u" {
		t.Errorf("Unexpected String(): %q", got)
	}
}
