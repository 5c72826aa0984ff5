package domain

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	dmarcstats "github.com/customeros/mailwatcher/dmarkstats"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailgovernor/dto"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/tracing"
)

const dmarcReportListLimit = 100

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// IngestDMARCReport stores every aggregate report inside the attachment.
func (s *domainService) IngestDMARCReport(ctx context.Context, input dto.DMARCReportInput) ([]models.DMARCReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.IngestDMARCReport")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("reporter", input.Reporter), tracingLog.String("contentType", input.ContentType))

	reports, err := decodeDMARCReports(input.Content, input.ContentType)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewValidationError("content", err.Error())
	}

	out := make([]models.DMARCReport, 0, len(reports))
	for _, report := range reports {
		record := buildDMARCReport(report, input.Reporter)
		if err := s.repos.DomainRecordRepository.CreateDMARCReport(ctx, &record); err != nil {
			tracing.TraceErr(span, err)
			return nil, governor_errors.NewPersistenceError("create dmarc report", err)
		}
		out = append(out, record)
	}
	span.LogFields(tracingLog.Int("result.reports", len(out)))
	return out, nil
}

func (s *domainService) ListDMARCReports(ctx context.Context, domain string) ([]models.DMARCReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ListDMARCReports")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domain, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	reports, err := s.repos.DomainRecordRepository.ListDMARCReports(ctx, domain, dmarcReportListLimit)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, governor_errors.NewPersistenceError("list dmarc reports", err)
	}
	return reports, nil
}

func buildDMARCReport(report dmarcstats.Report, reporter string) models.DMARCReport {
	data, _ := json.Marshal(report)
	return models.DMARCReport{
		Domain:       strings.ToLower(report.Domain),
		Reporter:     reporter,
		ReportStart:  report.ReportPeriod.Start,
		ReportEnd:    report.ReportPeriod.End,
		MessageCount: report.TotalMessages,
		SPFPass:      report.AuthResults.SPFPassCount,
		DKIMPass:     report.AuthResults.DKIMPassCount,
		DMARCPass:    report.AuthResults.DMARCPassCount,
		Data:         string(data),
	}
}

// decodeDMARCReports accepts base64 zip or gzip. The content type is a hint;
// the magic bytes decide.
func decodeDMARCReports(content, contentType string) ([]dmarcstats.Report, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64")
	}

	switch {
	case bytes.HasPrefix(decoded, zipMagic) || (contentType == "application/zip" && !bytes.HasPrefix(decoded, gzipMagic)):
		return readZip(decoded)
	case bytes.HasPrefix(decoded, gzipMagic):
		return readGzip(decoded)
	}
	return nil, errors.Errorf("unsupported report format %q", contentType)
}

func readZip(decoded []byte) ([]dmarcstats.Report, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(decoded), int64(len(decoded)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zip reader")
	}

	var reports []dmarcstats.Report
	for _, file := range zipReader.File {
		report, err := readZipFile(file)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	if len(reports) == 0 {
		return nil, errors.New("zip archive is empty")
	}
	return reports, nil
}

func readZipFile(file *zip.File) (*dmarcstats.Report, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open zip file %s", file.Name)
	}
	defer rc.Close()

	report, err := dmarcstats.AnalyzeDMARCReport(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to analyze DMARC report %s", file.Name)
	}
	return report, nil
}

func readGzip(decoded []byte) ([]dmarcstats.Report, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gzip reader")
	}
	defer gzReader.Close()

	report, err := dmarcstats.AnalyzeDMARCReport(gzReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to analyze DMARC report from gzip")
	}
	return []dmarcstats.Report{*report}, nil
}
