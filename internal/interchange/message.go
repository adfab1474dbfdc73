// Package interchange defines the canonical, already-parsed events consumed
// by the ADT core. The set of message types is closed: every consumer
// switches over the concrete types and treats anything else as an error.
package interchange

import "time"

// Kind names a message type on the wire.
type Kind string

const (
	KindAdmitPatient            Kind = "AdmitPatient"
	KindTransferPatient         Kind = "TransferPatient"
	KindDischargePatient        Kind = "DischargePatient"
	KindRegisterPatient         Kind = "RegisterPatient"
	KindCancelAdmitPatient      Kind = "CancelAdmitPatient"
	KindCancelTransferPatient   Kind = "CancelTransferPatient"
	KindCancelDischargePatient  Kind = "CancelDischargePatient"
	KindUpdatePatientInfo       Kind = "UpdatePatientInfo"
	KindImpliedAdt              Kind = "ImpliedAdtMessage"
	KindSwapLocations           Kind = "SwapLocations"
	KindMoveVisitInformation    Kind = "MoveVisitInformation"
	KindDeletePersonInformation Kind = "DeletePersonInformation"
	KindMergePatient            Kind = "MergePatient"
	KindChangeIdentifiers       Kind = "ChangePatientIdentifiers"
	KindLabOrder                Kind = "LabOrder"
	KindConsultRequest          Kind = "ConsultRequest"
	KindPatientForm             Kind = "PatientForm"
)

// Kinds lists every known message kind.
var Kinds = []Kind{
	KindAdmitPatient, KindTransferPatient, KindDischargePatient, KindRegisterPatient,
	KindCancelAdmitPatient, KindCancelTransferPatient, KindCancelDischargePatient,
	KindUpdatePatientInfo, KindImpliedAdt, KindSwapLocations, KindMoveVisitInformation,
	KindDeletePersonInformation, KindMergePatient, KindChangeIdentifiers,
	KindLabOrder, KindConsultRequest, KindPatientForm,
}

// Message is implemented by every canonical event.
type Message interface {
	Kind() Kind
	Meta() *Header
}

// AdtMessage is implemented by the visit-level ADT events.
type AdtMessage interface {
	Message
	Adt() *AdtFields
}

// Header carries the identifying fields shared by every event.
type Header struct {
	SourceSystem    string     `json:"sourceSystem"`
	SourceMessageID string     `json:"sourceMessageId,omitempty"`
	Mrn             string     `json:"mrn,omitempty"`
	NhsNumber       string     `json:"nhsNumber,omitempty"`
	VisitNumber     string     `json:"visitNumber,omitempty"`
	EventOccurredAt *time.Time `json:"eventOccurredDateTime,omitempty"`
	RecordedAt      time.Time  `json:"recordedDateTime"`
}

// Meta returns the header itself so embedding types satisfy Message.
func (h *Header) Meta() *Header { return h }

// ValidFrom is the best guess at when the event's facts became true: the
// event-occurred time when known, otherwise the recorded time.
func (h *Header) ValidFrom() time.Time {
	if h.EventOccurredAt != nil && !h.EventOccurredAt.IsZero() {
		return *h.EventOccurredAt
	}
	return h.RecordedAt
}

// AdtFields are the optional visit facts any ADT event may carry.
type AdtFields struct {
	PatientClass  Value[string]    `json:"patientClass,omitzero"`
	ModeOfArrival Value[string]    `json:"modeOfArrival,omitzero"`
	FullLocation  Value[string]    `json:"fullLocationString,omitzero"`
	AdmissionTime Value[time.Time] `json:"admissionDateTime,omitzero"`
}

// Adt returns the fields so embedding types satisfy AdtMessage.
func (a *AdtFields) Adt() *AdtFields { return a }

type AdmitPatient struct {
	Header
	AdtFields
	AdmissionType Value[string] `json:"admissionType,omitzero"`
}

func (*AdmitPatient) Kind() Kind { return KindAdmitPatient }

type TransferPatient struct {
	Header
	AdtFields
}

func (*TransferPatient) Kind() Kind { return KindTransferPatient }

type DischargePatient struct {
	Header
	AdtFields
	DischargeTime        *time.Time `json:"dischargeDateTime,omitempty"`
	DischargeDisposition *string    `json:"dischargeDisposition,omitempty"`
	DischargeLocation    *string    `json:"dischargeLocation,omitempty"`
}

func (*DischargePatient) Kind() Kind { return KindDischargePatient }

type RegisterPatient struct {
	Header
	AdtFields
	PresentationTime Value[time.Time] `json:"presentationDateTime,omitzero"`
}

func (*RegisterPatient) Kind() Kind { return KindRegisterPatient }

// Cancellation is implemented by events that retract an earlier event.
type Cancellation interface {
	AdtMessage
	CancelledTime() *time.Time
}

// CancellationTime is when the retraction takes effect: the cancelled time
// when the source sent one, otherwise the event's own time.
func CancellationTime(m Cancellation) time.Time {
	if t := m.CancelledTime(); t != nil {
		return *t
	}
	return m.Meta().ValidFrom()
}

type CancelAdmitPatient struct {
	Header
	AdtFields
	CancelledAt *time.Time `json:"cancelledDateTime,omitempty"`
}

func (*CancelAdmitPatient) Kind() Kind                  { return KindCancelAdmitPatient }
func (m *CancelAdmitPatient) CancelledTime() *time.Time { return m.CancelledAt }

// CancelTransferPatient retracts a transfer. FullLocation is where the
// patient returned to and CancelledLocation the erroneous destination.
type CancelTransferPatient struct {
	Header
	AdtFields
	CancelledAt       *time.Time    `json:"cancelledDateTime,omitempty"`
	CancelledLocation Value[string] `json:"cancelledLocation,omitzero"`
}

func (*CancelTransferPatient) Kind() Kind                  { return KindCancelTransferPatient }
func (m *CancelTransferPatient) CancelledTime() *time.Time { return m.CancelledAt }

type CancelDischargePatient struct {
	Header
	AdtFields
	CancelledAt *time.Time `json:"cancelledDateTime,omitempty"`
}

func (*CancelDischargePatient) Kind() Kind                  { return KindCancelDischargePatient }
func (m *CancelDischargePatient) CancelledTime() *time.Time { return m.CancelledAt }

type UpdatePatientInfo struct {
	Header
	AdtFields
}

func (*UpdatePatientInfo) Kind() Kind { return KindUpdatePatientInfo }

// ImpliedAdt is synthesised from non-ADT feeds. It has no clinical basis of
// its own and may only fill in missing facts.
type ImpliedAdt struct {
	Header
	AdtFields
}

func (*ImpliedAdt) Kind() Kind { return KindImpliedAdt }

// SwapLocations exchanges the beds of two visits. After processing the
// first visit is at FullLocation and the other visit at OtherFullLocation.
type SwapLocations struct {
	Header
	AdtFields
	OtherMrn          string        `json:"otherMrn,omitempty"`
	OtherNhsNumber    string        `json:"otherNhsNumber,omitempty"`
	OtherVisitNumber  string        `json:"otherVisitNumber,omitempty"`
	OtherFullLocation Value[string] `json:"otherFullLocationString,omitzero"`
}

func (*SwapLocations) Kind() Kind { return KindSwapLocations }

// MoveVisitInformation re-keys a visit from the previous identifiers to the
// identifiers in the header.
type MoveVisitInformation struct {
	Header
	AdtFields
	PreviousMrn         string `json:"previousMrn,omitempty"`
	PreviousNhsNumber   string `json:"previousNhsNumber,omitempty"`
	PreviousVisitNumber string `json:"previousVisitNumber,omitempty"`
}

func (*MoveVisitInformation) Kind() Kind { return KindMoveVisitInformation }

type DeletePersonInformation struct {
	Header
}

func (*DeletePersonInformation) Kind() Kind { return KindDeletePersonInformation }

// MergePatient retires the patient known by the retired identifiers in
// favour of the patient in the header.
type MergePatient struct {
	Header
	RetiredMrn       string `json:"retiredMrn,omitempty"`
	RetiredNhsNumber string `json:"retiredNhsNumber,omitempty"`
}

func (*MergePatient) Kind() Kind { return KindMergePatient }

// ChangePatientIdentifiers replaces the previous identifiers of a patient
// with the ones in the header.
type ChangePatientIdentifiers struct {
	Header
	PreviousMrn       string `json:"previousMrn,omitempty"`
	PreviousNhsNumber string `json:"previousNhsNumber,omitempty"`
}

func (*ChangePatientIdentifiers) Kind() Kind { return KindChangeIdentifiers }

type LabResult struct {
	TestCode   string        `json:"testCode"`
	Value      Value[string] `json:"value,omitzero"`
	Units      Value[string] `json:"units,omitzero"`
	Abnormal   Value[string] `json:"abnormalFlag,omitzero"`
	ResultTime time.Time     `json:"resultTime"`
}

type LabOrder struct {
	Header
	OrderNumber     string           `json:"labOrderNumber"`
	TestBatteryCode string           `json:"testBatteryCode,omitempty"`
	RequestedAt     Value[time.Time] `json:"requestedDateTime,omitzero"`
	Results         []LabResult      `json:"results,omitempty"`
}

func (*LabOrder) Kind() Kind { return KindLabOrder }

type ConsultRequest struct {
	Header
	ConsultID            string        `json:"consultId"`
	ConsultType          string        `json:"consultationType,omitempty"`
	RequestedAt          time.Time     `json:"requestedDateTime"`
	Comments             Value[string] `json:"notes,omitzero"`
	Cancelled            bool          `json:"cancelled,omitempty"`
	ClosedDueToDischarge bool          `json:"closedDueToDischarge,omitempty"`
}

func (*ConsultRequest) Kind() Kind { return KindConsultRequest }

type FormAnswer struct {
	QuestionID string        `json:"questionId"`
	Value      Value[string] `json:"value,omitzero"`
}

// PatientForm is a filed clinical form. Forms without a visit number attach
// to the patient directly.
type PatientForm struct {
	Header
	FormID   string       `json:"formId"`
	FormName string       `json:"formName,omitempty"`
	FiledAt  time.Time    `json:"filedDateTime"`
	Answers  []FormAnswer `json:"answers,omitempty"`
}

func (*PatientForm) Kind() Kind { return KindPatientForm }
