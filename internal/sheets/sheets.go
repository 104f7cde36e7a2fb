// Package sheets imports comparables from a publicly shared spreadsheet
// through its CSV export.
package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tasaciones/server/config"
	"tasaciones/server/internal/models"
)

var (
	ErrInvalidSheetURL = errors.New("invalid spreadsheet link")
	ErrFetchFailed     = errors.New("failed to fetch spreadsheet")
)

const noAddress = "Sin dirección"

var (
	sheetIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9-_]+)`)
	unitChars      = regexp.MustCompile(`[Uu$sSDdm²\s]`)
	numericPrefix  = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)`)
	thousandsDot   = regexp.MustCompile(`^[-+]?\d{1,3}\.\d{3}$`)
)

// Header aliases, Spanish first
var (
	addressHeaders   = []string{"Dirección", "Address"}
	priceHeaders     = []string{"Precio", "Price"}
	coveredHeaders   = []string{"Sup. Cubierta", "Covered Surface"}
	uncoveredHeaders = []string{"Sup. Descubierta", "Uncovered Surface"}
	typeHeaders      = []string{"Tipo Sup", "Surface Type"}
	factorHeaders    = []string{"Factor"}
	daysHeaders      = []string{"Días", "Days"}
)

// ExtractSheetID pulls the spreadsheet id out of a sharing link
func ExtractSheetID(sheetURL string) (string, error) {
	match := sheetIDPattern.FindStringSubmatch(sheetURL)
	if len(match) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSheetURL, sheetURL)
	}
	return match[1], nil
}

// CleanNumber parses loosely formatted numbers such as "U$S 150.000,50" or
// "85 m²". Unparseable input yields 0.
func CleanNumber(raw string) float64 {
	s := unitChars.ReplaceAllString(raw, "")
	if s == "" {
		return 0
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1, thousandsDot.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	prefix := numericPrefix.FindString(s)
	if prefix == "" {
		return 0
	}
	v, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return 0
	}
	return v
}

// Parse maps the CSV rows onto comparables. The first record is the header.
// Rows with neither an address nor a price are skipped.
func Parse(r io.Reader) ([]models.Comparable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	var comparables []models.Comparable
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if isEmptyRecord(record) {
			continue
		}

		row := rowReader{columns: columns, record: record}
		if c, ok := row.comparable(); ok {
			comparables = append(comparables, c)
		}
	}
	return comparables, nil
}

type rowReader struct {
	columns map[string]int
	record  []string
}

// get returns the first non-empty value among the aliases
func (r rowReader) get(aliases []string) string {
	for _, a := range aliases {
		i, ok := r.columns[a]
		if !ok || i >= len(r.record) {
			continue
		}
		if v := strings.TrimSpace(r.record[i]); v != "" {
			return v
		}
	}
	return ""
}

func (r rowReader) comparable() (models.Comparable, bool) {
	address := r.get(addressHeaders)
	priceRaw := r.get(priceHeaders)
	if (address == "" || address == noAddress) && priceRaw == "" {
		return models.Comparable{}, false
	}
	if address == "" {
		address = noAddress
	}

	surfaceType, ok := models.ParseSurfaceType(r.get(typeHeaders))
	if !ok {
		surfaceType = models.SurfaceNone
	}

	factor := CleanNumber(r.get(factorHeaders))
	if factor <= 0 {
		factor = config.DefaultFactor(surfaceType)
	}

	c := models.Comparable{
		Price:        CleanNumber(priceRaw),
		DaysOnMarket: int(CleanNumber(r.get(daysHeaders))),
	}
	c.Address = address
	c.CoveredSurface = CleanNumber(r.get(coveredHeaders))
	c.UncoveredSurface = CleanNumber(r.get(uncoveredHeaders))
	c.SurfaceType = surfaceType
	c.HomogenizationFactor = factor
	c.Images = []string{}
	return c, true
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Importer fetches spreadsheet CSV exports
type Importer struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
	now     func() time.Time
}

func NewImporter(baseURL string, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Importer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		now:     time.Now,
	}
}

// CSVURL builds the export link for a sheet id, with a cache buster
func (i *Importer) CSVURL(sheetID string) string {
	return fmt.Sprintf("%s/%s/gviz/tq?tqx=out:csv&t=%d", i.baseURL, sheetID, i.now().UnixMilli())
}

// Fetch downloads and parses the sheet behind sheetURL
func (i *Importer) Fetch(ctx context.Context, sheetURL string) ([]models.Comparable, error) {
	sheetID, err := ExtractSheetID(sheetURL)
	if err != nil {
		return nil, err
	}

	csvURL := i.CSVURL(sheetID)
	i.logger.WithField("sheet_id", sheetID).Info("Fetching data from spreadsheet")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, csvURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	comparables, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	i.logger.WithFields(logrus.Fields{
		"sheet_id": sheetID,
		"rows":     len(comparables),
	}).Info("Parsed spreadsheet rows")
	return comparables, nil
}
