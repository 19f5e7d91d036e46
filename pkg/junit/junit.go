package junit

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrReportNotFound is returned when no readable report exists at the
	// location: it is missing, a directory, or cannot be read.
	ErrReportNotFound = errors.New("report not found")

	// ErrMalformedReport is returned when the report is not a valid JUnit XML document.
	ErrMalformedReport = errors.New("malformed report")
)

// Status is the normalized outcome of a single test case.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
	StatusSkip  Status = "skip"
)

// Record is one executed test case flattened out of a report.
type Record struct {
	Suite         string
	Identifier    string
	Status        Status
	ExecutionTime float64
	ErrorMessage  string
}

type xmlSuite struct {
	Name   string     `xml:"name,attr"`
	Cases  []xmlCase  `xml:"testcase"`
	Suites []xmlSuite `xml:"testsuite"`
}

type xmlCase struct {
	Name     string       `xml:"name,attr"`
	Time     string       `xml:"time,attr"`
	Children []xmlOutcome `xml:",any"`
}

// xmlOutcome captures any child of a testcase so the first
// failure/error/skipped node can be picked in document order.
type xmlOutcome struct {
	XMLName xml.Name
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
}

// Parse reads the report at path and returns its records in document order.
func Parse(path string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, path)
		}

		return nil, fmt.Errorf("%w: %w", ErrReportNotFound, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrReportNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrReportNotFound, path, err)
	}

	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}

	return records, nil
}

// Decode parses a JUnit XML document. The root element may be either
// <testsuites> or a single <testsuite>.
func Decode(r io.Reader) ([]Record, error) {
	dec := xml.NewDecoder(r)

	root, err := firstElement(dec)
	if err != nil {
		return nil, err
	}

	var suites []xmlSuite

	switch root.Name.Local {
	case "testsuites":
		var doc struct {
			Suites []xmlSuite `xml:"testsuite"`
		}

		if err := dec.DecodeElement(&doc, &root); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}

		suites = doc.Suites
	case "testsuite":
		var suite xmlSuite
		if err := dec.DecodeElement(&suite, &root); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}

		suites = []xmlSuite{suite}
	default:
		return nil, fmt.Errorf(
			"%w: unexpected root element <%s>, want <testsuites> or <testsuite>",
			ErrMalformedReport, root.Name.Local,
		)
	}

	records := make([]Record, 0, countCases(suites))

	for _, suite := range suites {
		records, err = appendSuite(records, suite)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

// firstElement advances the decoder to the root start element.
func firstElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, fmt.Errorf("%w: empty document", ErrMalformedReport)
			}

			return xml.StartElement{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}

		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

func countCases(suites []xmlSuite) int {
	n := 0
	for _, s := range suites {
		n += len(s.Cases) + countCases(s.Suites)
	}

	return n
}

func appendSuite(records []Record, suite xmlSuite) ([]Record, error) {
	for _, c := range suite.Cases {
		record, err := toRecord(suite.Name, c)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	var err error
	for _, nested := range suite.Suites {
		records, err = appendSuite(records, nested)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

func toRecord(suite string, c xmlCase) (Record, error) {
	execTime, err := parseTime(c.Time)
	if err != nil {
		return Record{}, fmt.Errorf("%w: test case %q: %v", ErrMalformedReport, c.Name, err)
	}

	record := Record{
		Suite:         suite,
		Identifier:    c.Name,
		Status:        StatusPass,
		ExecutionTime: execTime,
	}

	if outcome := firstOutcome(c.Children); outcome != nil {
		record.Status = classify(outcome)
		record.ErrorMessage = outcome.Message
	}

	return record, nil
}

func firstOutcome(children []xmlOutcome) *xmlOutcome {
	for i := range children {
		switch children[i].XMLName.Local {
		case "failure", "error", "skipped":
			return &children[i]
		}
	}

	return nil
}

// classify matches against the node name plus its type attribute, so a
// <failure type="AssertionError"> is a failure rather than an error.
func classify(o *xmlOutcome) Status {
	key := strings.ToLower(o.XMLName.Local + " " + o.Type)

	switch {
	case strings.Contains(key, "failure"):
		return StatusFail
	case strings.Contains(key, "error"):
		return StatusError
	case strings.Contains(key, "skipped"):
		return StatusSkip
	default:
		return StatusPass
	}
}

func parseTime(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}

	return v, nil
}
