package interchange

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type Kind `json:"type"`
}

// New returns an empty message of the given kind.
func New(kind Kind) (Message, error) {
	switch kind {
	case KindAdmitPatient:
		return &AdmitPatient{}, nil
	case KindTransferPatient:
		return &TransferPatient{}, nil
	case KindDischargePatient:
		return &DischargePatient{}, nil
	case KindRegisterPatient:
		return &RegisterPatient{}, nil
	case KindCancelAdmitPatient:
		return &CancelAdmitPatient{}, nil
	case KindCancelTransferPatient:
		return &CancelTransferPatient{}, nil
	case KindCancelDischargePatient:
		return &CancelDischargePatient{}, nil
	case KindUpdatePatientInfo:
		return &UpdatePatientInfo{}, nil
	case KindImpliedAdt:
		return &ImpliedAdt{}, nil
	case KindSwapLocations:
		return &SwapLocations{}, nil
	case KindMoveVisitInformation:
		return &MoveVisitInformation{}, nil
	case KindDeletePersonInformation:
		return &DeletePersonInformation{}, nil
	case KindMergePatient:
		return &MergePatient{}, nil
	case KindChangeIdentifiers:
		return &ChangePatientIdentifiers{}, nil
	case KindLabOrder:
		return &LabOrder{}, nil
	case KindConsultRequest:
		return &ConsultRequest{}, nil
	case KindPatientForm:
		return &PatientForm{}, nil
	}
	return nil, fmt.Errorf("unknown message type %q", kind)
}

// Decode parses one JSON encoded message. The "type" member selects the
// concrete message; every other member maps onto that message's fields.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	msg, err := New(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

// Encode renders msg as a JSON object with its kind in the "type" member.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"type":%q`, msg.Kind())
	inner := bytes.TrimSpace(body)
	inner = bytes.TrimPrefix(inner, []byte("{"))
	if len(bytes.TrimSpace(inner)) > 1 {
		buf.WriteByte(',')
	}
	buf.Write(inner)
	return buf.Bytes(), nil
}
