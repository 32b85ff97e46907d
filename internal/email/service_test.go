package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/igabaycare/care-api/internal/config"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSMTPServiceSend(t *testing.T) {
	d := &fakeDialer{}
	svc := NewSMTPService(d, "IgabayCare <no-reply@igabaycare.com>")

	require.NoError(t, svc.Send(context.Background(), "juan@example.com", "Appointment confirmed", "See you soon"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"juan@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment confirmed"}, d.sent[0].GetHeader("Subject"))
}

func TestSMTPServiceErrors(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	svc := NewSMTPService(d, "from@example.com")

	err := svc.Send(context.Background(), "juan@example.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")

	assert.Error(t, svc.Send(context.Background(), "", "s", "b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Send(ctx, "juan@example.com", "s", "b"), context.Canceled)
}

func TestNewServiceWithoutHostLogs(t *testing.T) {
	svc := NewService(config.SMTPConfig{})
	assert.IsType(t, logService{}, svc)
	assert.NoError(t, svc.Send(context.Background(), "juan@example.com", "s", "b"))
}
