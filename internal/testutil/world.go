// Package testutil seeds an in-memory store with the accounts most service
// tests need.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository/memory"
)

// World is an approved clinic with one active doctor and one patient.
type World struct {
	Store *memory.Store
	Repos *memory.Repositories

	PatientUser *model.User
	Patient     *model.Patient
	ClinicUser  *model.User
	Clinic      *model.Clinic
	Doctor      *model.Doctor
	Admin       *model.User
}

func NewWorld(t *testing.T) *World {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	w := &World{Store: store, Repos: memory.NewRepositories(store)}

	w.PatientUser = w.User(t, "maria@example.com", model.RolePatient)
	w.ClinicUser = w.User(t, "front-desk@sanjose-clinic.ph", model.RoleClinic)
	w.Admin = w.User(t, "ops@igabaycare.com", model.RoleAdmin)

	w.Patient = &model.Patient{
		UserID:    w.PatientUser.ID,
		FirstName: "Maria",
		LastName:  "Santos",
		Email:     w.PatientUser.Email,
		Phone:     "+639171234567",
	}
	require.NoError(t, w.Repos.Patients.Upsert(ctx, w.Patient))

	w.Clinic = &model.Clinic{
		UserID:        w.ClinicUser.ID,
		Name:          "San Jose Family Clinic",
		Email:         w.ClinicUser.Email,
		City:          "Cebu City",
		Specialties:   []string{"family medicine"},
		Status:        model.ClinicStatusApproved,
		LicenseNumber: "CLN123456",
	}
	require.NoError(t, w.Repos.Clinics.Create(ctx, w.Clinic))

	w.Doctor = w.AddDoctor(t, w.Clinic.ID, 50000)
	return w
}

func (w *World) User(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Email: email, Role: role, Status: model.UserStatusActive, PasswordHash: "x"}
	require.NoError(t, w.Repos.Users.Create(context.Background(), u))
	return u
}

// AddDoctor adds an active doctor working 08:00-17:00 every day.
func (w *World) AddDoctor(t *testing.T, clinicID uuid.UUID, fee int64) *model.Doctor {
	t.Helper()
	d := &model.Doctor{
		ClinicID:            clinicID,
		FullName:            "Dr. Jose Reyes",
		Specialization:      "family medicine",
		LicenseNumber:       "PRC0012345",
		ConsultationFee:     fee,
		Currency:            "PHP",
		SlotDurationMinutes: 30,
		WorkStart:           "08:00",
		WorkEnd:             "17:00",
		WorkDays:            []int64{0, 1, 2, 3, 4, 5, 6},
		Status:              model.DoctorStatusActive,
	}
	require.NoError(t, w.Repos.Doctors.Create(context.Background(), d))
	return d
}

func (w *World) PatientActor() model.Actor {
	return model.Actor{UserID: w.PatientUser.ID, Role: model.RolePatient, Email: w.PatientUser.Email}
}

func (w *World) ClinicActor() model.Actor {
	return model.Actor{UserID: w.ClinicUser.ID, Role: model.RoleClinic, Email: w.ClinicUser.Email}
}

func (w *World) AdminActor() model.Actor {
	return model.Actor{UserID: w.Admin.ID, Role: model.RoleAdmin, Email: w.Admin.Email}
}

// Appointment stores an appointment with the world's doctor directly,
// bypassing booking rules.
func (w *World) Appointment(t *testing.T, start time.Time, status model.AppointmentStatus, payment model.PaymentStatus) *model.Appointment {
	t.Helper()
	apt := &model.Appointment{
		PatientID:     w.Patient.ID,
		ClinicID:      w.Clinic.ID,
		DoctorID:      w.Doctor.ID,
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Type:          "consultation",
		Status:        status,
		PaymentStatus: payment,
		PaymentMethod: model.PaymentMethodOnline,
		FeeAmount:     w.Doctor.ConsultationFee,
		Currency:      "PHP",
	}
	require.NoError(t, w.Repos.Appointments.CreateIfSlotFree(context.Background(), apt))
	return apt
}

// Recorder collects notifications instead of delivering them.
type Recorder struct {
	Messages []model.Message
	Err      error
}

func (r *Recorder) Notify(_ context.Context, msg model.Message) error {
	if r.Err != nil {
		return r.Err
	}
	r.Messages = append(r.Messages, msg)
	return nil
}

// Types lists the notification types sent to userID.
func (r *Recorder) Types(userID uuid.UUID) []string {
	var out []string
	for _, m := range r.Messages {
		if m.UserID == userID {
			out = append(out, m.Type)
		}
	}
	return out
}
