package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/payment"
)

// testDB connects to IGABAY_TEST_DATABASE_URL and applies testdata/schema.sql.
// Rows use fresh ids so runs never collide.
func testDB(t *testing.T) BaseRepository {
	t.Helper()
	dsn := os.Getenv("IGABAY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("IGABAY_TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("testdata/schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return NewBaseRepository(db)
}

func insertDoctor(t *testing.T, base BaseRepository) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := base.GetDB().Exec(`INSERT INTO doctors (id, clinic_id, name) VALUES ($1, $2, 'Dr. Reyes')`, id, uuid.New())
	require.NoError(t, err)
	return id
}

func newAppointment(doctorID uuid.UUID, start time.Time) *model.Appointment {
	return &model.Appointment{
		PatientID:     uuid.New(),
		ClinicID:      uuid.New(),
		DoctorID:      doctorID,
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Type:          "consultation",
		Status:        model.AppointmentStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		PaymentMethod: "gcash",
		FeeAmount:     150000,
		Currency:      "PHP",
	}
}

func TestCreateIfSlotFreeAdmitsOneOfConcurrentBookings(t *testing.T) {
	base := testDB(t)
	repo := NewAppointmentRepository(base)
	doctorID := insertDoctor(t, base)
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)

	const bookings = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		won   int
		taken int
	)
	for i := 0; i < bookings; i++ {
		wg.Add(1)
		go func(offset time.Duration) {
			defer wg.Done()
			// every slot overlaps the others
			err := repo.CreateIfSlotFree(context.Background(), newAppointment(doctorID, start.Add(offset)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, repository.ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(time.Duration(i) * time.Minute)
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, bookings-1, taken)

	blocking, err := repo.ListBlocking(context.Background(), doctorID, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, blocking, 1)
}

func TestCancelledAppointmentFreesSlot(t *testing.T) {
	base := testDB(t)
	repo := NewAppointmentRepository(base)
	doctorID := insertDoctor(t, base)
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)

	first := newAppointment(doctorID, start)
	require.NoError(t, repo.CreateIfSlotFree(context.Background(), first))
	assert.ErrorIs(t, repo.CreateIfSlotFree(context.Background(), newAppointment(doctorID, start)), repository.ErrSlotTaken)

	cancelled := *first
	cancelled.Status = model.AppointmentStatusCancelled
	require.NoError(t, repo.UpdateStatus(context.Background(), &cancelled, model.AppointmentStatusPending, model.PaymentStatusPending))

	assert.NoError(t, repo.CreateIfSlotFree(context.Background(), newAppointment(doctorID, start)))
}

func TestUpdateStatusRequiresBothStatusesUnchanged(t *testing.T) {
	base := testDB(t)
	repo := NewAppointmentRepository(base)
	apt := newAppointment(insertDoctor(t, base), time.Now().UTC().Add(96*time.Hour).Truncate(time.Hour))
	require.NoError(t, repo.CreateIfSlotFree(context.Background(), apt))

	next := *apt
	next.Status = model.AppointmentStatusCancelled
	err := repo.UpdateStatus(context.Background(), &next, model.AppointmentStatusPending, model.PaymentStatusPaid)
	assert.ErrorIs(t, err, repository.ErrConflict, "payment status moved since it was read")

	err = repo.UpdateStatus(context.Background(), &next, model.AppointmentStatusConfirmed, model.PaymentStatusPending)
	assert.ErrorIs(t, err, repository.ErrConflict, "status moved since it was read")

	require.NoError(t, repo.UpdateStatus(context.Background(), &next, model.AppointmentStatusPending, model.PaymentStatusPending))
	got, err := repo.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
}

// paymentFixture books an appointment and opens a pending Adyen
// transaction for it.
func paymentFixture(t *testing.T, base BaseRepository) (*model.Appointment, *model.Transaction) {
	t.Helper()
	apt := newAppointment(insertDoctor(t, base), time.Now().UTC().Add(120*time.Hour).Truncate(time.Hour))
	require.NoError(t, NewAppointmentRepository(base).CreateIfSlotFree(context.Background(), apt))

	txn := &model.Transaction{
		AppointmentID:     apt.ID,
		PatientID:         apt.PatientID,
		ClinicID:          apt.ClinicID,
		Provider:          model.ProviderAdyen,
		MerchantReference: "IGC-" + uuid.NewString(),
		Amount:            apt.FeeAmount,
		Currency:          apt.Currency,
		Method:            "card",
		Status:            model.TransactionStatusPending,
	}
	require.NoError(t, NewTransactionRepository(base).Create(context.Background(), txn))
	return apt, txn
}

func providerEvent(txn *model.Transaction, eventID string, status model.TransactionStatus, at time.Time) *model.ProviderEvent {
	return &model.ProviderEvent{
		Provider:   model.ProviderAdyen,
		EventID:    eventID,
		EventType:  "AUTHORISATION",
		Reference:  txn.MerchantReference,
		Status:     status,
		Amount:     txn.Amount,
		Currency:   txn.Currency,
		OccurredAt: at,
		Raw:        json.RawMessage(`{"eventCode":"AUTHORISATION"}`),
	}
}

func apply(base BaseRepository, ev *model.ProviderEvent) (bool, *model.PaymentEffect, error) {
	return NewTransactionRepository(base).ApplyWebhookEvent(context.Background(), ev.Record(time.Now().UTC()),
		func(txn *model.Transaction, apt *model.Appointment) (*model.PaymentEffect, error) {
			return payment.Decide(ev, txn, apt)
		})
}

func TestApplyWebhookEventAppliesConcurrentDuplicatesOnce(t *testing.T) {
	base := testDB(t)
	apt, txn := paymentFixture(t, base)
	ev := providerEvent(txn, "PSP-"+uuid.NewString()+":AUTHORISATION:true", model.TransactionStatusPaid, time.Now().UTC().Truncate(time.Second))

	const deliveries = 5
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		applied    int
		duplicates int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			duplicate, effect, err := apply(base, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if duplicate {
				duplicates++
				return
			}
			applied++
			assert.Equal(t, model.WebhookOutcomeApplied, effect.Outcome)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, deliveries-1, duplicates)

	var rows int
	require.NoError(t, base.GetDB().Get(&rows,
		`SELECT COUNT(*) FROM webhook_events WHERE provider = $1 AND event_id = $2`, ev.Provider, ev.EventID))
	assert.Equal(t, 1, rows)

	var published int
	require.NoError(t, base.GetDB().Get(&published,
		`SELECT COUNT(*) FROM outbox_events WHERE event_type = $1 AND payload->>'transaction_id' = $2`,
		model.EventPaymentPaid, txn.ID.String()))
	assert.Equal(t, 1, published)

	got, err := NewAppointmentRepository(base).Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, model.AppointmentStatusConfirmed, got.Status)
}

func TestApplyWebhookEventSkipsOlderProviderEvent(t *testing.T) {
	base := testDB(t)
	_, txn := paymentFixture(t, base)
	later := time.Now().UTC().Truncate(time.Second)

	_, effect, err := apply(base, providerEvent(txn, uuid.NewString(), model.TransactionStatusAuthorized, later))
	require.NoError(t, err)
	require.Equal(t, model.WebhookOutcomeApplied, effect.Outcome)

	// authorized -> paid is allowed; only the provider time rules it out
	_, effect, err = apply(base, providerEvent(txn, uuid.NewString(), model.TransactionStatusPaid, later.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookOutcomeStale, effect.Outcome)

	got, err := NewTransactionRepository(base).Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusAuthorized, got.Status)
	require.NotNil(t, got.ProviderEventAt)
	assert.True(t, later.Equal(*got.ProviderEventAt))

	_, effect, err = apply(base, providerEvent(txn, uuid.NewString(), model.TransactionStatusPaid, later.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookOutcomeApplied, effect.Outcome)
}

func TestMarkStartedKeepsSettledPayment(t *testing.T) {
	base := testDB(t)
	apt, txn := paymentFixture(t, base)
	_, _, err := apply(base, providerEvent(txn, uuid.NewString(), model.TransactionStatusPaid, time.Now().UTC()))
	require.NoError(t, err)

	psp := "PSP-late"
	started := *txn
	started.ProviderReference = &psp
	require.NoError(t, NewTransactionRepository(base).MarkStarted(context.Background(), &started))
	assert.Equal(t, model.TransactionStatusPaid, started.Status)

	got, err := NewAppointmentRepository(base).Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus, "settled payment must not fall back to pending")
}
