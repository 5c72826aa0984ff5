package transport

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"sort"
	"time"

	"github.com/customeros/mailgovernor/dto"
)

// buildMessage renders the RFC 5322 message. Both parts are sent when both
// bodies are present, as multipart/alternative.
func buildMessage(message dto.TransportMessage, date time.Time) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	headers := map[string]string{
		"From":         (&mail.Address{Name: message.FromName, Address: message.From}).String(),
		"To":           message.To,
		"Subject":      mime.QEncoding.Encode("utf-8", message.Subject),
		"Message-ID":   "<" + message.MessageID + ">",
		"Date":         date.Format(time.RFC1123Z),
		"MIME-Version": "1.0",
	}

	switch {
	case message.HTML != "" && message.Text != "":
		body := bytes.NewBuffer(nil)
		writer := multipart.NewWriter(body)
		headers["Content-Type"] = "multipart/alternative; boundary=" + writer.Boundary()
		if err := addPart(writer, "text/plain", message.Text); err != nil {
			return nil, err
		}
		if err := addPart(writer, "text/html", message.HTML); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		writeHeaders(headers, buffer)
		buffer.Write(body.Bytes())
	case message.HTML != "":
		headers["Content-Type"] = "text/html; charset=UTF-8"
		headers["Content-Transfer-Encoding"] = "quoted-printable"
		writeHeaders(headers, buffer)
		if err := writeQuotedPrintable(buffer, message.HTML); err != nil {
			return nil, err
		}
	default:
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		headers["Content-Transfer-Encoding"] = "quoted-printable"
		writeHeaders(headers, buffer)
		if err := writeQuotedPrintable(buffer, message.Text); err != nil {
			return nil, err
		}
	}
	return buffer.Bytes(), nil
}

func addPart(writer *multipart.Writer, contentType, content string) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType + "; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return qp.Close()
}

func writeQuotedPrintable(buffer *bytes.Buffer, content string) error {
	qp := quotedprintable.NewWriter(buffer)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

// writeHeaders writes headers in a stable order followed by the blank line.
func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, headers[k]))
	}
	buffer.WriteString("\r\n")
}
