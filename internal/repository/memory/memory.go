// Package memory implements the repository interfaces over in-process maps.
// It mirrors the postgres semantics that services rely on (slot locking,
// conditional status updates, webhook deduplication) and backs service
// tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

// Store holds every table. One mutex serialises all access, which stands
// in for row locks.
type Store struct {
	mu sync.Mutex

	users         map[uuid.UUID]model.User
	patients      map[uuid.UUID]model.Patient
	clinics       map[uuid.UUID]model.Clinic
	doctors       map[uuid.UUID]model.Doctor
	appointments  map[uuid.UUID]model.Appointment
	transactions  map[uuid.UUID]model.Transaction
	webhookEvents map[string]model.WebhookEvent
	notifications map[uuid.UUID]model.Notification
	reminders     map[uuid.UUID]model.Reminder
	reviews       map[uuid.UUID]model.Review
	prescriptions map[uuid.UUID]model.Prescription
	outbox        map[uuid.UUID]model.OutboxEvent
	audit         map[uuid.UUID]model.AuditLog
}

func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]model.User),
		patients:      make(map[uuid.UUID]model.Patient),
		clinics:       make(map[uuid.UUID]model.Clinic),
		doctors:       make(map[uuid.UUID]model.Doctor),
		appointments:  make(map[uuid.UUID]model.Appointment),
		transactions:  make(map[uuid.UUID]model.Transaction),
		webhookEvents: make(map[string]model.WebhookEvent),
		notifications: make(map[uuid.UUID]model.Notification),
		reminders:     make(map[uuid.UUID]model.Reminder),
		reviews:       make(map[uuid.UUID]model.Review),
		prescriptions: make(map[uuid.UUID]model.Prescription),
		outbox:        make(map[uuid.UUID]model.OutboxEvent),
		audit:         make(map[uuid.UUID]model.AuditLog),
	}
}

func now() time.Time { return time.Now().UTC() }

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func window[T any](items []T, p model.Page) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *Store) addEvents(events []*model.OutboxEvent) {
	for _, e := range events {
		if e == nil {
			continue
		}
		ensureID(&e.ID)
		if e.Status == "" {
			e.Status = model.OutboxStatusPending
		}
		s.outbox[e.ID] = *e
	}
}

// OutboxEvents returns a snapshot of the outbox, oldest first.
func (s *Store) OutboxEvents() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// WebhookEvents returns a snapshot of recorded deliveries.
func (s *Store) WebhookEvents() []*model.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.WebhookEvent, 0, len(s.webhookEvents))
	for _, e := range s.webhookEvents {
		e := e
		out = append(out, &e)
	}
	return out
}

// Reminders returns every reminder of an appointment.
func (s *Store) Reminders(appointmentID uuid.UUID) []*model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Reminder
	for _, r := range s.reminders {
		if r.AppointmentID == appointmentID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemindAt.Before(out[j].RemindAt) })
	return out
}

// Notifications returns every notification addressed to userID.
func (s *Store) Notifications(userID uuid.UUID) []*model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			n := n
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AuditLogs returns a snapshot of the audit trail.
func (s *Store) AuditLogs() []*model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AuditLog, 0, len(s.audit))
	for _, l := range s.audit {
		l := l
		out = append(out, &l)
	}
	return out
}

// Repositories wires every interface to one store.
type Repositories struct {
	Users         repository.UserRepository
	Patients      repository.PatientRepository
	Clinics       repository.ClinicRepository
	Doctors       repository.DoctorRepository
	Appointments  repository.AppointmentRepository
	Transactions  repository.TransactionRepository
	WebhookEvents repository.WebhookEventRepository
	Notifications repository.NotificationRepository
	Reminders     repository.ReminderRepository
	Reviews       repository.ReviewRepository
	Prescriptions repository.PrescriptionRepository
	Outbox        repository.OutboxRepository
	Audit         repository.AuditRepository
}

func NewRepositories(s *Store) *Repositories {
	return &Repositories{
		Users:         userRepo{s},
		Patients:      patientRepo{s},
		Clinics:       clinicRepo{s},
		Doctors:       doctorRepo{s},
		Appointments:  appointmentRepo{s},
		Transactions:  transactionRepo{s},
		WebhookEvents: webhookEventRepo{s},
		Notifications: notificationRepo{s},
		Reminders:     reminderRepo{s},
		Reviews:       reviewRepo{s},
		Prescriptions: prescriptionRepo{s},
		Outbox:        outboxRepo{s},
		Audit:         auditRepo{s},
	}
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("create user: %w", repository.ErrConflict)
		}
	}
	ensureID(&u.ID)
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = *u
	return nil
}

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (r userRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("user: %w", repository.ErrNotFound)
	}
	u.LastLoginAt = &at
	r.s.users[id] = u
	return nil
}

type patientRepo struct{ s *Store }

func (r patientRepo) Upsert(_ context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.patients {
		if existing.UserID == p.UserID {
			p.ID = id
			p.CreatedAt = existing.CreatedAt
		}
	}
	ensureID(&p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	p.UpdatedAt = now()
	r.s.patients[p.ID] = *p
	return nil
}

func (r patientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient: %w", repository.ErrNotFound)
	}
	return &p, nil
}

func (r patientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("patient: %w", repository.ErrNotFound)
}

type clinicRepo struct{ s *Store }

func (r clinicRepo) Create(_ context.Context, c *model.Clinic, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&c.ID)
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	r.s.clinics[c.ID] = *c
	r.s.addEvents(events)
	return nil
}

func (r clinicRepo) Get(_ context.Context, id uuid.UUID) (*model.Clinic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clinics[id]
	if !ok {
		return nil, fmt.Errorf("clinic: %w", repository.ErrNotFound)
	}
	return &c, nil
}

func (r clinicRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Clinic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.clinics {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("clinic: %w", repository.ErrNotFound)
}

func (r clinicRepo) Update(_ context.Context, c *model.Clinic) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.clinics[c.ID]
	if !ok {
		return fmt.Errorf("clinic: %w", repository.ErrNotFound)
	}
	// profile edits never touch status or rating
	c.Status = existing.Status
	c.AverageRating = existing.AverageRating
	c.ReviewCount = existing.ReviewCount
	c.UpdatedAt = now()
	r.s.clinics[c.ID] = *c
	return nil
}

func (r clinicRepo) UpdateStatus(_ context.Context, c *model.Clinic, from model.ClinicStatus, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.clinics[c.ID]
	if !ok || existing.Status != from {
		return fmt.Errorf("clinic status changed concurrently: %w", repository.ErrConflict)
	}
	existing.Status = c.Status
	existing.RejectionReason = c.RejectionReason
	existing.UpdatedAt = now()
	c.UpdatedAt = existing.UpdatedAt
	r.s.clinics[c.ID] = existing
	r.s.addEvents(events)
	return nil
}

func (r clinicRepo) List(_ context.Context, f model.ClinicFilter, p model.Page) ([]*model.Clinic, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Clinic
	for _, c := range r.s.clinics {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Query != "" && !containsFold(c.Name, f.Query) && !containsFold(c.Description, f.Query) {
			continue
		}
		if f.City != "" && !strings.EqualFold(c.City, f.City) {
			continue
		}
		if f.Specialty != "" && !contains(c.Specialties, f.Specialty) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageRating != out[j].AverageRating {
			return out[i].AverageRating > out[j].AverageRating
		}
		return out[i].Name < out[j].Name
	})
	return window(out, p), int64(len(out)), nil
}

type doctorRepo struct{ s *Store }

func (r doctorRepo) Create(_ context.Context, d *model.Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&d.ID)
	d.CreatedAt = now()
	d.UpdatedAt = d.CreatedAt
	r.s.doctors[d.ID] = *d
	return nil
}

func (r doctorRepo) Get(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor: %w", repository.ErrNotFound)
	}
	return &d, nil
}

func (r doctorRepo) Update(_ context.Context, d *model.Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[d.ID]; !ok {
		return fmt.Errorf("doctor: %w", repository.ErrNotFound)
	}
	d.UpdatedAt = now()
	r.s.doctors[d.ID] = *d
	return nil
}

func (r doctorRepo) ListByClinic(_ context.Context, clinicID uuid.UUID, activeOnly bool) ([]*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Doctor
	for _, d := range r.s.doctors {
		if d.ClinicID != clinicID || (activeOnly && !d.IsActive()) {
			continue
		}
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

type appointmentRepo struct{ s *Store }

func (r appointmentRepo) slotTaken(doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) bool {
	for _, a := range r.s.appointments {
		if a.DoctorID == doctorID && a.ID != exclude && a.BlocksSlot() && a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r appointmentRepo) CreateIfSlotFree(_ context.Context, apt *model.Appointment, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[apt.DoctorID]; !ok {
		return fmt.Errorf("doctor: %w", repository.ErrNotFound)
	}
	if r.slotTaken(apt.DoctorID, apt.StartTime, apt.EndTime, uuid.Nil) {
		return repository.ErrSlotTaken
	}
	ensureID(&apt.ID)
	apt.CreatedAt = now()
	apt.UpdatedAt = apt.CreatedAt
	r.s.appointments[apt.ID] = *apt
	r.s.addEvents(events)
	return nil
}

func (r appointmentRepo) RescheduleIfSlotFree(_ context.Context, apt *model.Appointment, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.appointments[apt.ID]
	if !ok {
		return fmt.Errorf("appointment: %w", repository.ErrNotFound)
	}
	if existing.Status != model.AppointmentStatusPending && existing.Status != model.AppointmentStatusConfirmed {
		return fmt.Errorf("appointment status changed concurrently: %w", repository.ErrConflict)
	}
	if r.slotTaken(apt.DoctorID, apt.StartTime, apt.EndTime, apt.ID) {
		return repository.ErrSlotTaken
	}
	existing.StartTime = apt.StartTime
	existing.EndTime = apt.EndTime
	existing.UpdatedAt = now()
	apt.UpdatedAt = existing.UpdatedAt
	r.s.appointments[apt.ID] = existing
	r.s.addEvents(events)
	return nil
}

func (r appointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment: %w", repository.ErrNotFound)
	}
	return &a, nil
}

func (r appointmentRepo) List(_ context.Context, f model.AppointmentFilter, p model.Page) ([]*model.Appointment, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Appointment
	for _, a := range r.s.appointments {
		switch {
		case f.PatientID != nil && a.PatientID != *f.PatientID,
			f.ClinicID != nil && a.ClinicID != *f.ClinicID,
			f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.From != nil && a.StartTime.Before(*f.From),
			f.To != nil && !a.StartTime.Before(*f.To):
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return window(out, p), int64(len(out)), nil
}

func (r appointmentRepo) ListBlocking(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Appointment
	for _, a := range r.s.appointments {
		if a.DoctorID == doctorID && a.BlocksSlot() && a.Overlaps(from, to) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r appointmentRepo) UpdateStatus(_ context.Context, apt *model.Appointment, from model.AppointmentStatus, fromPayment model.PaymentStatus, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.appointments[apt.ID]
	if !ok || existing.Status != from || existing.PaymentStatus != fromPayment {
		return fmt.Errorf("appointment changed concurrently: %w", repository.ErrConflict)
	}
	existing.Status = apt.Status
	existing.PaymentStatus = apt.PaymentStatus
	existing.Notes = apt.Notes
	existing.CancelReason = apt.CancelReason
	existing.CancelledBy = apt.CancelledBy
	existing.UpdatedAt = now()
	apt.UpdatedAt = existing.UpdatedAt
	r.s.appointments[apt.ID] = existing
	r.s.addEvents(events)
	return nil
}

func (r appointmentRepo) HasPatientAtClinic(_ context.Context, patientID, clinicID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.appointments {
		if a.PatientID == patientID && a.ClinicID == clinicID {
			return true, nil
		}
	}
	return false, nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(_ context.Context, t *model.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.transactions {
		if existing.MerchantReference == t.MerchantReference {
			return fmt.Errorf("create transaction: %w", repository.ErrConflict)
		}
	}
	ensureID(&t.ID)
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt
	r.s.transactions[t.ID] = *t
	return nil
}

func (r transactionRepo) Get(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction: %w", repository.ErrNotFound)
	}
	return &t, nil
}

func (r transactionRepo) CountByAppointment(_ context.Context, appointmentID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.transactions {
		if t.AppointmentID == appointmentID {
			n++
		}
	}
	return n, nil
}

func (r transactionRepo) MarkStarted(_ context.Context, t *model.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.transactions[t.ID]
	if !ok {
		return fmt.Errorf("transaction: %w", repository.ErrNotFound)
	}
	if existing.ProviderReference == nil {
		existing.ProviderReference = t.ProviderReference
	}
	existing.CheckoutURL = t.CheckoutURL
	existing.Method = t.Method
	existing.UpdatedAt = now()
	r.s.transactions[t.ID] = existing
	t.Status = existing.Status
	if existing.Status != model.TransactionStatusPending {
		return nil
	}

	if a, ok := r.s.appointments[t.AppointmentID]; ok &&
		(a.PaymentStatus == model.PaymentStatusUnpaid || a.PaymentStatus == model.PaymentStatusFailed) {
		a.PaymentStatus = model.PaymentStatusPending
		r.s.appointments[a.ID] = a
	}
	return nil
}

func (r transactionRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok || (t.Status != model.TransactionStatusPending && t.Status != model.TransactionStatusAuthorized) {
		return fmt.Errorf("transaction: %w", repository.ErrNotFound)
	}
	t.Status = model.TransactionStatusFailed
	t.FailureReason = &reason
	t.UpdatedAt = now()
	r.s.transactions[id] = t
	return nil
}

func (r transactionRepo) FindByReference(_ context.Context, ref string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t := r.newestByRef(ref); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("transaction: %w", repository.ErrNotFound)
}

func (r transactionRepo) newestByRef(ref string) *model.Transaction {
	var txn *model.Transaction
	for _, t := range r.s.transactions {
		if matchesRef(t, ref) && (txn == nil || t.CreatedAt.After(txn.CreatedAt)) {
			t := t
			txn = &t
		}
	}
	return txn
}

func (r transactionRepo) ApplyWebhookEvent(_ context.Context, record *model.WebhookEvent, fn repository.WebhookApplyFunc) (bool, *model.PaymentEffect, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := string(record.Provider) + ":" + record.EventID
	if _, seen := r.s.webhookEvents[key]; seen {
		return true, nil, nil
	}

	txn := r.newestByRef(record.Reference)
	var apt *model.Appointment
	if txn != nil {
		a, ok := r.s.appointments[txn.AppointmentID]
		if !ok {
			return false, nil, fmt.Errorf("appointment: %w", repository.ErrNotFound)
		}
		apt = &a
	}

	effect, err := fn(txn, apt)
	if err != nil {
		// rolled back, the delivery is not recorded
		return false, nil, err
	}

	if t := effect.Transaction; t != nil {
		stored := r.s.transactions[t.ID]
		stored.Status = t.Status
		stored.ProviderReference = t.ProviderReference
		stored.PaymentReference = t.PaymentReference
		stored.FailureReason = t.FailureReason
		stored.ProviderEventAt = t.ProviderEventAt
		stored.UpdatedAt = now()
		r.s.transactions[t.ID] = stored
	}
	if a := effect.Appointment; a != nil {
		stored := r.s.appointments[a.ID]
		stored.Status = a.Status
		stored.PaymentStatus = a.PaymentStatus
		stored.UpdatedAt = now()
		r.s.appointments[a.ID] = stored
	}
	r.s.addEvents(effect.Events)

	processed := now()
	outcome := effect.Outcome
	record.ProcessedAt = &processed
	record.Outcome = &outcome
	r.s.webhookEvents[key] = *record
	return false, effect, nil
}

func matchesRef(t model.Transaction, ref string) bool {
	if ref == "" {
		return false
	}
	return t.MerchantReference == ref ||
		(t.ProviderReference != nil && *t.ProviderReference == ref) ||
		(t.PaymentReference != nil && *t.PaymentReference == ref)
}

type webhookEventRepo struct{ s *Store }

func (r webhookEventRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, e := range r.s.webhookEvents {
		if e.ReceivedAt.Before(cutoff) {
			delete(r.s.webhookEvents, k)
			n++
		}
	}
	return n, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreateBatch(_ context.Context, ns []*model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ts := now()
	for _, n := range ns {
		ensureID(&n.ID)
		n.CreatedAt = ts
		n.UpdatedAt = ts
		r.s.notifications[n.ID] = *n
	}
	return nil
}

func (r notificationRepo) UpdateDelivery(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.notifications[n.ID]
	if !ok {
		return fmt.Errorf("notification: %w", repository.ErrNotFound)
	}
	stored.Status = n.Status
	stored.RetryCount = n.RetryCount
	stored.LastError = n.LastError
	stored.NextRetryAt = n.NextRetryAt
	stored.SentAt = n.SentAt
	stored.UpdatedAt = now()
	n.UpdatedAt = stored.UpdatedAt
	r.s.notifications[n.ID] = stored
	return nil
}

func (r notificationRepo) ClaimDueRetries(_ context.Context, at time.Time, lease time.Duration, limit int) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var due []*model.Notification
	for _, n := range r.s.notifications {
		if n.Status == model.NotificationStatusRetrying && n.NextRetryAt != nil && !n.NextRetryAt.After(at) {
			n := n
			due = append(due, &n)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	leased := at.Add(lease)
	for _, n := range due {
		stored := r.s.notifications[n.ID]
		stored.NextRetryAt = &leased
		r.s.notifications[n.ID] = stored
		n.NextRetryAt = &leased
	}
	return due, nil
}

func (r notificationRepo) inbox(userID uuid.UUID, unreadOnly bool) []*model.Notification {
	var out []*model.Notification
	for _, n := range r.s.notifications {
		if n.UserID != userID || n.Channel != model.ChannelInApp || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		n := n
		out = append(out, &n)
	}
	return out
}

func (r notificationRepo) ListInbox(_ context.Context, userID uuid.UUID, unreadOnly bool, p model.Page) ([]*model.Notification, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.inbox(userID, unreadOnly)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, p), int64(len(out)), nil
}

func (r notificationRepo) MarkRead(_ context.Context, id, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.UserID != userID || n.Channel != model.ChannelInApp {
		return fmt.Errorf("notification: %w", repository.ErrNotFound)
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	r.s.notifications[id] = n
	return nil
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, n := range r.inbox(userID, true) {
		stored := r.s.notifications[n.ID]
		stored.ReadAt = &at
		r.s.notifications[n.ID] = stored
		count++
	}
	return count, nil
}

func (r notificationRepo) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.inbox(userID, true))), nil
}

type reminderRepo struct{ s *Store }

func (r reminderRepo) cancel(appointmentID uuid.UUID) {
	for id, rem := range r.s.reminders {
		if rem.AppointmentID == appointmentID && rem.Status == model.ReminderStatusScheduled {
			rem.Status = model.ReminderStatusCancelled
			rem.UpdatedAt = now()
			r.s.reminders[id] = rem
		}
	}
}

func (r reminderRepo) Replace(_ context.Context, appointmentID uuid.UUID, reminders []*model.Reminder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.cancel(appointmentID)
	for _, rem := range reminders {
		ensureID(&rem.ID)
		rem.AppointmentID = appointmentID
		rem.CreatedAt = now()
		rem.UpdatedAt = rem.CreatedAt
		r.s.reminders[rem.ID] = *rem
	}
	return nil
}

func (r reminderRepo) CancelForAppointment(_ context.Context, appointmentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.cancel(appointmentID)
	return nil
}

// ProcessDue runs handle without holding the store lock so that handle may
// use other repositories.
func (r reminderRepo) ProcessDue(ctx context.Context, at time.Time, limit int, handle func(context.Context, *model.Reminder) model.ReminderStatus) (int, error) {
	r.s.mu.Lock()
	var due []*model.Reminder
	for _, rem := range r.s.reminders {
		if rem.Status == model.ReminderStatusScheduled && !rem.RemindAt.After(at) {
			rem := rem
			due = append(due, &rem)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].RemindAt.Before(due[j].RemindAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	handled := 0
	for _, rem := range due {
		status := handle(ctx, rem)
		if status == model.ReminderStatusScheduled {
			continue
		}
		r.s.mu.Lock()
		stored := r.s.reminders[rem.ID]
		stored.Status = status
		if status == model.ReminderStatusSent {
			sent := at
			stored.SentAt = &sent
		}
		stored.UpdatedAt = now()
		r.s.reminders[rem.ID] = stored
		r.s.mu.Unlock()
		handled++
	}
	return handled, nil
}

type reviewRepo struct{ s *Store }

func (r reviewRepo) Create(_ context.Context, rv *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reviews {
		if existing.AppointmentID == rv.AppointmentID {
			return fmt.Errorf("create review: %w", repository.ErrConflict)
		}
	}
	ensureID(&rv.ID)
	rv.CreatedAt = now()
	rv.UpdatedAt = rv.CreatedAt
	r.s.reviews[rv.ID] = *rv

	if c, ok := r.s.clinics[rv.ClinicID]; ok {
		sum, count := 0, 0
		for _, existing := range r.s.reviews {
			if existing.ClinicID == rv.ClinicID {
				sum += existing.Rating
				count++
			}
		}
		c.AverageRating = float64(sum) / float64(count)
		c.ReviewCount = count
		r.s.clinics[c.ID] = c
	}
	return nil
}

func (r reviewRepo) ListByClinic(_ context.Context, clinicID uuid.UUID, p model.Page) ([]*model.Review, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Review
	for _, rv := range r.s.reviews {
		if rv.ClinicID == clinicID {
			rv := rv
			out = append(out, &rv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, p), int64(len(out)), nil
}

type prescriptionRepo struct{ s *Store }

func (r prescriptionRepo) Create(_ context.Context, p *model.Prescription, events ...*model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&p.ID)
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	r.s.prescriptions[p.ID] = *p
	r.s.addEvents(events)
	return nil
}

func (r prescriptionRepo) Get(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prescriptions[id]
	if !ok {
		return nil, fmt.Errorf("prescription: %w", repository.ErrNotFound)
	}
	return &p, nil
}

func (r prescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, pg model.Page) ([]*model.Prescription, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Prescription
	for _, p := range r.s.prescriptions {
		if p.PatientID == patientID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return window(out, pg), int64(len(out)), nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	if e == nil || e.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.addEvents([]*model.OutboxEvent{e})
	return nil
}

func (r outboxRepo) ProcessPending(ctx context.Context, limit int, handle func(context.Context, *model.OutboxEvent) model.OutboxOutcome) (int, error) {
	r.s.mu.Lock()
	ts := now()
	var due []*model.OutboxEvent
	for _, e := range r.s.outbox {
		if (e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusRetry) &&
			(e.RetryAt == nil || !e.RetryAt.After(ts)) {
			e := e
			due = append(due, &e)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	for _, e := range due {
		outcome := handle(ctx, e)
		r.s.mu.Lock()
		stored := r.s.outbox[e.ID]
		stored.Status = outcome.Status
		stored.ErrorMessage = outcome.Error
		stored.RetryAt = outcome.RetryAt
		if outcome.Status != model.OutboxStatusProcessed {
			stored.RetryCount++
		} else {
			processed := now()
			stored.ProcessedAt = &processed
		}
		stored.UpdatedAt = now()
		r.s.outbox[e.ID] = stored
		r.s.mu.Unlock()
	}
	return len(due), nil
}

func (r outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(_ context.Context, l *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ensureID(&l.ID)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now()
	}
	r.s.audit[l.ID] = *l
	return nil
}

func (r auditRepo) List(_ context.Context, f model.AuditFilter, p model.Page) ([]*model.AuditLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.AuditLog
	for _, l := range r.s.audit {
		switch {
		case f.UserID != nil && (l.UserID == nil || *l.UserID != *f.UserID),
			f.EntityType != "" && l.EntityType != f.EntityType,
			f.EntityID != nil && l.EntityID != *f.EntityID,
			f.Action != "" && l.Action != f.Action,
			f.From != nil && l.CreatedAt.Before(*f.From),
			f.To != nil && !l.CreatedAt.Before(*f.To):
			continue
		}
		l := l
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, p), int64(len(out)), nil
}

func (r auditRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, l := range r.s.audit {
		if l.CreatedAt.Before(cutoff) {
			delete(r.s.audit, id)
			n++
		}
	}
	return n, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}
