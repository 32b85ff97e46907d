package notification

import (
	"context"
	"fmt"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

// Parties resolves the accounts on both sides of an appointment.
type Parties struct {
	patients repository.PatientRepository
	clinics  repository.ClinicRepository
}

func NewParties(patients repository.PatientRepository, clinics repository.ClinicRepository) *Parties {
	return &Parties{patients: patients, clinics: clinics}
}

type AppointmentParties struct {
	Patient *model.Patient
	Clinic  *model.Clinic
}

func (p *Parties) ForAppointment(ctx context.Context, apt *model.Appointment) (*AppointmentParties, error) {
	patient, err := p.patients.Get(ctx, apt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	clinic, err := p.clinics.Get(ctx, apt.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	return &AppointmentParties{Patient: patient, Clinic: clinic}, nil
}

// ToPatient addresses msg to the patient over every channel.
func (ap *AppointmentParties) ToPatient(msg model.Message) model.Message {
	msg.UserID = ap.Patient.UserID
	msg.Email = ap.Patient.Email
	msg.Channels = []model.Channel{model.ChannelInApp, model.ChannelEmail, model.ChannelPush}
	return msg
}

// ToClinic addresses msg to the clinic account, in-app and by email.
func (ap *AppointmentParties) ToClinic(msg model.Message) model.Message {
	msg.UserID = ap.Clinic.UserID
	msg.Email = ap.Clinic.Email
	msg.Channels = []model.Channel{model.ChannelInApp, model.ChannelEmail}
	return msg
}
