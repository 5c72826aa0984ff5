package transport

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/models"
)

type fakeSMTP struct {
	enabled    bool
	from       string
	recipients []string
	raw        []byte
	err        error
}

func (f *fakeSMTP) configured() bool { return f.enabled }

func (f *fakeSMTP) send(_ context.Context, from string, recipients []string, raw []byte) error {
	f.from, f.recipients, f.raw = from, recipients, raw
	return f.err
}

type fakeAPI struct {
	enabled bool
	sent    []dto.TransportMessage
	err     error
}

func (f *fakeAPI) configured() bool { return f.enabled }

func (f *fakeAPI) send(_ context.Context, message dto.TransportMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, message)
	return "sg-123", nil
}

func newService(smtp *fakeSMTP, api *fakeAPI) *transportService {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()
	return &transportService{
		log:      log,
		smtp:     smtp,
		sendgrid: api,
		clock:    func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) },
	}
}

func account(provider enum.EmailProvider) *models.SendingAccount {
	return &models.SendingAccount{
		ID:       "acc_1",
		Address:  "ana@acme.io",
		Domain:   "acme.io",
		FromName: "Ana",
		Provider: provider,
	}
}

func TestSend_SMTPRendersMessage(t *testing.T) {
	smtp := &fakeSMTP{enabled: true}
	svc := newService(smtp, &fakeAPI{})

	result, err := svc.Send(context.Background(), account(enum.EmailSMTP), dto.TransportMessage{
		To:        "Lead@Example.com",
		Subject:   "Hello there",
		HTML:      "<p>Hi</p>",
		Text:      "Hi",
		MessageID: "<m1@acme.io>",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1@acme.io", result.ProviderMessageID)
	assert.Equal(t, "ana@acme.io", smtp.from)
	assert.Equal(t, []string{"lead@example.com"}, smtp.recipients)

	parsed, err := mail.ReadMessage(strings.NewReader(string(smtp.raw)))
	require.NoError(t, err)
	assert.Equal(t, "<m1@acme.io>", parsed.Header.Get("Message-ID"))
	assert.Equal(t, `"Ana" <ana@acme.io>`, parsed.Header.Get("From"))
	assert.Equal(t, "Hello there", parsed.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var types []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))
	}
	assert.Equal(t, []string{"text/plain; charset=UTF-8", "text/html; charset=UTF-8"}, types)
}

func TestBuildMessage_SinglePart(t *testing.T) {
	raw, err := buildMessage(dto.TransportMessage{
		From:      "ana@acme.io",
		To:        "lead@example.com",
		Subject:   "Über",
		HTML:      "<p>" + strings.Repeat("x", 100) + "</p>",
		MessageID: "m2@acme.io",
	}, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=UTF-8", parsed.Header.Get("Content-Type"))
	assert.Equal(t, "quoted-printable", parsed.Header.Get("Content-Transfer-Encoding"))
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Über", subject)
	date, err := parsed.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)))
}

func TestSend_Routing(t *testing.T) {
	t.Run("sendgrid accounts use the api", func(t *testing.T) {
		smtp, api := &fakeSMTP{enabled: true}, &fakeAPI{enabled: true}
		result, err := newService(smtp, api).Send(context.Background(), account(enum.EmailSendgrid),
			dto.TransportMessage{To: "lead@example.com", Subject: "s", Text: "t"})
		require.NoError(t, err)
		assert.Equal(t, "sg-123", result.ProviderMessageID)
		require.Len(t, api.sent, 1)
		assert.NotEmpty(t, api.sent[0].MessageID)
		assert.Nil(t, smtp.raw)
	})
	t.Run("api is the fallback without smtp", func(t *testing.T) {
		api := &fakeAPI{enabled: true}
		_, err := newService(&fakeSMTP{}, api).Send(context.Background(), account(enum.EmailGoogleWorkspace),
			dto.TransportMessage{To: "lead@example.com", Subject: "s", Text: "t"})
		require.NoError(t, err)
		assert.Len(t, api.sent, 1)
	})
	t.Run("nothing configured", func(t *testing.T) {
		_, err := newService(&fakeSMTP{}, &fakeAPI{}).Send(context.Background(), account(enum.EmailSMTP),
			dto.TransportMessage{To: "lead@example.com", Subject: "s", Text: "t"})
		assert.ErrorIs(t, err, ErrNoTransport)
	})
	t.Run("transport failure is returned", func(t *testing.T) {
		smtp := &fakeSMTP{enabled: true, err: errors.New("550 relay denied")}
		_, err := newService(smtp, &fakeAPI{}).Send(context.Background(), account(enum.EmailSMTP),
			dto.TransportMessage{To: "lead@example.com", Subject: "s", Text: "t"})
		assert.EqualError(t, err, "550 relay denied")
	})
}

func TestSend_Validation(t *testing.T) {
	svc := newService(&fakeSMTP{enabled: true}, &fakeAPI{})
	tests := []struct {
		name    string
		message dto.TransportMessage
		field   string
	}{
		{"bad recipient", dto.TransportMessage{To: "not-an-address", Subject: "s", Text: "t"}, "to"},
		{"foreign from", dto.TransportMessage{From: "ana@other.io", To: "lead@example.com", Subject: "s", Text: "t"}, "from"},
		{"no subject", dto.TransportMessage{To: "lead@example.com", Text: "t"}, "subject"},
		{"no body", dto.TransportMessage{To: "lead@example.com", Subject: "s"}, "html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), account(enum.EmailSMTP), tt.message)
			var validationErr *governor_errors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestNewSendgridMail_CarriesMessageID(t *testing.T) {
	m := newSendgridMail(dto.TransportMessage{
		From:      "ana@acme.io",
		FromName:  "Ana",
		To:        "lead@example.com",
		Subject:   "s",
		Text:      "t",
		HTML:      "<p>t</p>",
		MessageID: "m3@acme.io",
	})
	assert.Equal(t, "<m3@acme.io>", m.Headers["Message-ID"])
	assert.Equal(t, "Ana", m.From.Name)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "lead@example.com", m.Personalizations[0].To[0].Address)
}
