package interchange

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecode_AdmitPatient(t *testing.T) {
	raw := `{
		"type": "AdmitPatient",
		"sourceSystem": "EPIC",
		"mrn": "40800000",
		"visitNumber": "123412341234",
		"eventOccurredDateTime": "2020-01-01T01:00:00Z",
		"recordedDateTime": "2020-01-01T01:01:00Z",
		"fullLocationString": "T42E^T42E BY03^BY03-17",
		"patientClass": null,
		"admissionDateTime": "2020-01-01T00:55:00Z"
	}`

	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	admit, ok := msg.(*AdmitPatient)
	if !ok {
		t.Fatalf("expected *AdmitPatient, got %T", msg)
	}
	if admit.Kind() != KindAdmitPatient {
		t.Errorf("unexpected kind %s", admit.Kind())
	}
	if admit.Meta().VisitNumber != "123412341234" {
		t.Errorf("unexpected visit number %q", admit.VisitNumber)
	}
	if loc, ok := admit.FullLocation.Get(); !ok || loc != "T42E^T42E BY03^BY03-17" {
		t.Errorf("unexpected location %v", admit.FullLocation)
	}
	if !admit.PatientClass.IsDelete() {
		t.Errorf("explicit null should decode as delete, got %s", admit.PatientClass.State())
	}
	if !admit.ModeOfArrival.IsUnknown() {
		t.Errorf("absent member should decode as unknown, got %s", admit.ModeOfArrival.State())
	}
	want := time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC)
	if !admit.ValidFrom().Equal(want) {
		t.Errorf("ValidFrom() = %v, want %v", admit.ValidFrom(), want)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `admit`},
		{"missing type", `{"sourceSystem": "EPIC"}`},
		{"unknown type", `{"type": "MergePatient"}`},
		{"bad field", `{"type": "AdmitPatient", "recordedDateTime": 12}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEncode_KeepsValueStates(t *testing.T) {
	occurred := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	msg := &TransferPatient{
		Header: Header{SourceSystem: "EPIC", VisitNumber: "v1", EventOccurredAt: &occurred, RecordedAt: occurred},
		AdtFields: AdtFields{
			FullLocation: Present("ward^room^bed"),
			PatientClass: Delete[string](),
		},
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		t.Fatalf("encoded message is not an object: %v", err)
	}
	if string(members["type"]) != `"TransferPatient"` {
		t.Errorf("unexpected type member %s", members["type"])
	}
	if _, ok := members["modeOfArrival"]; ok {
		t.Error("unknown value should be omitted")
	}
	if string(members["patientClass"]) != "null" {
		t.Errorf("delete should encode as null, got %s", members["patientClass"])
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	transfer := back.(*TransferPatient)
	if !transfer.PatientClass.IsDelete() || !transfer.ModeOfArrival.IsUnknown() {
		t.Errorf("value states not preserved: class=%s arrival=%s",
			transfer.PatientClass.State(), transfer.ModeOfArrival.State())
	}
}

func TestEncode_EmptyBody(t *testing.T) {
	data, err := Encode(&DeletePersonInformation{})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if _, err := Decode(data); err != nil {
		t.Fatalf("round trip of minimal message failed: %v (%s)", err, data)
	}
}

func TestNew_CoversEveryKind(t *testing.T) {
	for _, k := range Kinds {
		msg, err := New(k)
		if err != nil {
			t.Fatalf("New(%s) error: %v", k, err)
		}
		if msg.Kind() != k {
			t.Errorf("New(%s) returned %s", k, msg.Kind())
		}
	}
}

func TestValue_Accessors(t *testing.T) {
	v := Present("x")
	if p := v.Ptr(); p == nil || *p != "x" {
		t.Errorf("Ptr() = %v", p)
	}
	if Delete[string]().Ptr() != nil || Unknown[string]().Ptr() != nil {
		t.Error("Ptr() should be nil unless present")
	}
	if Unknown[int]().OrElse(3) != 3 {
		t.Error("OrElse should fall back for unknown")
	}
	if !FromPtr[string](nil).IsDelete() {
		t.Error("FromPtr(nil) should be delete")
	}
}
